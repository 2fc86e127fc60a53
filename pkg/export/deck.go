package export

import (
	"archive/zip"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"time"

	"github.com/xhad/readmit/internal/models"
	"github.com/xhad/readmit/internal/types"
)

const DefaultOverviewTitle = "Comprehensive Readmission Program"

// Slide is one title-and-content slide. Body lines become paragraphs.
type Slide struct {
	Title string
	Body  string
}

// Deck is a slide deck written as an Office Open XML presentation.
type Deck struct {
	Title   string
	Created time.Time
	slides  []Slide
}

func NewDeck() *Deck {
	return &Deck{Title: "Readmission summary"}
}

// BuildDeck makes one slide per summary, in order, followed by the
// overview slide listing every summarized term.
func BuildDeck(summaries []models.Summary, overviewTitle string) *Deck {
	if overviewTitle == "" {
		overviewTitle = DefaultOverviewTitle
	}

	d := NewDeck()
	terms := make([]string, 0, len(summaries))
	for _, s := range summaries {
		d.AddSlide(s.Term, s.Text)
		terms = append(terms, s.Term)
	}
	d.AddSlide(overviewTitle, OverviewBody(terms))
	return d
}

// OverviewBody is the closing slide text for the given terms.
func OverviewBody(terms []string) string {
	lines := make([]string, 0, len(terms))
	for _, t := range terms {
		lines = append(lines, t+": Summary Available")
	}
	return strings.Join(lines, "\n\n")
}

func (d *Deck) AddSlide(title, body string) {
	d.slides = append(d.slides, Slide{Title: title, Body: body})
}

func (d *Deck) Slides() []Slide {
	out := make([]Slide, len(d.slides))
	copy(out, d.slides)
	return out
}

func (d *Deck) Len() int { return len(d.slides) }

// Write encodes the deck as a .pptx archive.
func (d *Deck) Write(w io.Writer) error {
	if len(d.slides) == 0 {
		return types.Wrap(types.KindExport, "write deck", fmt.Errorf("deck has no slides"))
	}

	created := d.Created
	if created.IsZero() {
		created = time.Now()
	}

	zw := zip.NewWriter(w)
	data := deckData{
		Title:   d.Title,
		Created: created.UTC().Format(time.RFC3339),
		Slides:  make([]slideData, len(d.slides)),
	}
	for i, s := range d.slides {
		data.Slides[i] = slideData{
			Number: i + 1,
			ID:     256 + i,
			RelID:  firstSlideRel + i,
			Title:  paragraphs(s.Title),
			Body:   paragraphs(s.Body),
		}
	}

	parts := []part{
		{"[Content_Types].xml", execute(contentTypesTmpl, data)},
		{"_rels/.rels", static(rootRels)},
		{"docProps/core.xml", execute(coreTmpl, data)},
		{"docProps/app.xml", execute(appTmpl, data)},
		{"ppt/presentation.xml", execute(presentationTmpl, data)},
		{"ppt/_rels/presentation.xml.rels", execute(presentationRelsTmpl, data)},
		{"ppt/presProps.xml", static(presProps)},
		{"ppt/tableStyles.xml", static(tableStyles)},
		{"ppt/theme/theme1.xml", static(theme)},
		{"ppt/slideMasters/slideMaster1.xml", static(slideMaster)},
		{"ppt/slideMasters/_rels/slideMaster1.xml.rels", static(slideMasterRels)},
		{"ppt/slideLayouts/slideLayout1.xml", static(slideLayout)},
		{"ppt/slideLayouts/_rels/slideLayout1.xml.rels", static(slideLayoutRels)},
	}
	for _, s := range data.Slides {
		parts = append(parts,
			part{fmt.Sprintf("ppt/slides/slide%d.xml", s.Number), execute(slideTmpl, s)},
			part{fmt.Sprintf("ppt/slides/_rels/slide%d.xml.rels", s.Number), static(slideRels)},
		)
	}

	for _, p := range parts {
		if err := p.writeTo(zw); err != nil {
			zw.Close()
			return types.Wrap(types.KindExport, "write deck part "+p.name, err)
		}
	}
	return types.Wrap(types.KindExport, "write deck", zw.Close())
}

// WriteFile writes the deck to path.
func (d *Deck) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return types.Wrap(types.KindExport, "create "+path, err)
	}
	if err := d.Write(f); err != nil {
		f.Close()
		return err
	}
	return types.Wrap(types.KindExport, "close "+path, f.Close())
}

// part is one file inside the presentation archive.
type part struct {
	name   string
	render func(io.Writer) error
}

func (p part) writeTo(zw *zip.Writer) error {
	f, err := zw.Create(p.name)
	if err != nil {
		return err
	}
	return p.render(f)
}

func static(body string) func(io.Writer) error {
	return func(w io.Writer) error {
		_, err := io.WriteString(w, body)
		return err
	}
}

func execute(t *template.Template, data any) func(io.Writer) error {
	return func(w io.Writer) error { return t.Execute(w, data) }
}

// Relationship IDs 1-4 in presentation.xml.rels are fixed parts.
const firstSlideRel = 5

type deckData struct {
	Title   string
	Created string
	Slides  []slideData
}

type slideData struct {
	Number int
	ID     int
	RelID  int
	Title  []string
	Body   []string
}

func paragraphs(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.Split(text, "\n")
}

// xmlText escapes s for element content, dropping characters XML 1.0
// cannot carry.
func xmlText(s string) string {
	s = strings.Map(func(r rune) rune {
		switch {
		case r == '\t':
			return r
		case r < 0x20, r >= 0xD800 && r <= 0xDFFF, r == 0xFFFE, r == 0xFFFF:
			return -1
		}
		return r
	}, s)
	var b strings.Builder
	xml.EscapeText(&b, []byte(s))
	return b.String()
}

var funcs = template.FuncMap{"xml": xmlText}

func mustTemplate(name, text string) *template.Template {
	return template.Must(template.New(name).Funcs(funcs).Parse(text))
}

const (
	nsA = `http://schemas.openxmlformats.org/drawingml/2006/main`
	nsR = `http://schemas.openxmlformats.org/officeDocument/2006/relationships`
	nsP = `http://schemas.openxmlformats.org/presentationml/2006/main`

	relBase = `http://schemas.openxmlformats.org/officeDocument/2006/relationships/`

	xmlHeader = `<?xml version="1.0" encoding="UTF-8" standalone="yes"?>` + "\n"
	pmlRoot   = `xmlns:a="` + nsA + `" xmlns:r="` + nsR + `" xmlns:p="` + nsP + `"`

	groupProps = `<p:nvGrpSpPr><p:cNvPr id="1" name=""/><p:cNvGrpSpPr/><p:nvPr/></p:nvGrpSpPr>` +
		`<p:grpSpPr><a:xfrm><a:off x="0" y="0"/><a:ext cx="0" cy="0"/><a:chOff x="0" y="0"/><a:chExt cx="0" cy="0"/></a:xfrm></p:grpSpPr>`
)

var contentTypesTmpl = mustTemplate("content-types", xmlHeader+
	`<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types">`+
	`<Default Extension="rels" ContentType="application/vnd.openxmlformats-package.relationships+xml"/>`+
	`<Default Extension="xml" ContentType="application/xml"/>`+
	`<Override PartName="/ppt/presentation.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presentation.main+xml"/>`+
	`<Override PartName="/ppt/presProps.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.presProps+xml"/>`+
	`<Override PartName="/ppt/tableStyles.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.tableStyles+xml"/>`+
	`<Override PartName="/ppt/theme/theme1.xml" ContentType="application/vnd.openxmlformats-officedocument.theme+xml"/>`+
	`<Override PartName="/ppt/slideMasters/slideMaster1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideMaster+xml"/>`+
	`<Override PartName="/ppt/slideLayouts/slideLayout1.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slideLayout+xml"/>`+
	`{{range .Slides}}<Override PartName="/ppt/slides/slide{{.Number}}.xml" ContentType="application/vnd.openxmlformats-officedocument.presentationml.slide+xml"/>{{end}}`+
	`<Override PartName="/docProps/core.xml" ContentType="application/vnd.openxmlformats-package.core-properties+xml"/>`+
	`<Override PartName="/docProps/app.xml" ContentType="application/vnd.openxmlformats-officedocument.extended-properties+xml"/>`+
	`</Types>`)

const rootRels = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="` + relBase + `officeDocument" Target="ppt/presentation.xml"/>` +
	`<Relationship Id="rId2" Type="http://schemas.openxmlformats.org/package/2006/relationships/metadata/core-properties" Target="docProps/core.xml"/>` +
	`<Relationship Id="rId3" Type="` + relBase + `extended-properties" Target="docProps/app.xml"/>` +
	`</Relationships>`

var coreTmpl = mustTemplate("core", xmlHeader+
	`<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties" `+
	`xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:dcterms="http://purl.org/dc/terms/" `+
	`xmlns:dcmitype="http://purl.org/dc/dcmitype/" xmlns:xsi="http://www.w3.org/2001/XMLSchema-instance">`+
	`<dc:title>{{xml .Title}}</dc:title><dc:creator>readmit</dc:creator>`+
	`<dcterms:created xsi:type="dcterms:W3CDTF">{{.Created}}</dcterms:created>`+
	`<dcterms:modified xsi:type="dcterms:W3CDTF">{{.Created}}</dcterms:modified>`+
	`</cp:coreProperties>`)

var appTmpl = mustTemplate("app", xmlHeader+
	`<Properties xmlns="http://schemas.openxmlformats.org/officeDocument/2006/extended-properties" `+
	`xmlns:vt="http://schemas.openxmlformats.org/officeDocument/2006/docPropsVTypes">`+
	`<Application>readmit</Application><Slides>{{len .Slides}}</Slides>`+
	`</Properties>`)

var presentationTmpl = mustTemplate("presentation", xmlHeader+
	`<p:presentation `+pmlRoot+` saveSubsetFonts="1">`+
	`<p:sldMasterIdLst><p:sldMasterId id="2147483648" r:id="rId1"/></p:sldMasterIdLst>`+
	`<p:sldIdLst>{{range .Slides}}<p:sldId id="{{.ID}}" r:id="rId{{.RelID}}"/>{{end}}</p:sldIdLst>`+
	`<p:sldSz cx="9144000" cy="6858000" type="screen4x3"/>`+
	`<p:notesSz cx="6858000" cy="9144000"/>`+
	`</p:presentation>`)

var presentationRelsTmpl = mustTemplate("presentation-rels", xmlHeader+
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">`+
	`<Relationship Id="rId1" Type="`+relBase+`slideMaster" Target="slideMasters/slideMaster1.xml"/>`+
	`<Relationship Id="rId2" Type="`+relBase+`presProps" Target="presProps.xml"/>`+
	`<Relationship Id="rId3" Type="`+relBase+`tableStyles" Target="tableStyles.xml"/>`+
	`<Relationship Id="rId4" Type="`+relBase+`theme" Target="theme/theme1.xml"/>`+
	`{{range .Slides}}<Relationship Id="rId{{.RelID}}" Type="`+relBase+`slide" Target="slides/slide{{.Number}}.xml"/>{{end}}`+
	`</Relationships>`)

const presProps = xmlHeader + `<p:presentationPr ` + pmlRoot + `/>`

const tableStyles = xmlHeader +
	`<a:tblStyleLst xmlns:a="` + nsA + `" def="{5C22544A-7EE6-4342-B048-85BDC9FD1C3A}"/>`

const theme = xmlHeader +
	`<a:theme xmlns:a="` + nsA + `" name="Office Theme"><a:themeElements>` +
	`<a:clrScheme name="Office">` +
	`<a:dk1><a:sysClr val="windowText" lastClr="000000"/></a:dk1>` +
	`<a:lt1><a:sysClr val="window" lastClr="FFFFFF"/></a:lt1>` +
	`<a:dk2><a:srgbClr val="1F497D"/></a:dk2>` +
	`<a:lt2><a:srgbClr val="EEECE1"/></a:lt2>` +
	`<a:accent1><a:srgbClr val="4F81BD"/></a:accent1>` +
	`<a:accent2><a:srgbClr val="C0504D"/></a:accent2>` +
	`<a:accent3><a:srgbClr val="9BBB59"/></a:accent3>` +
	`<a:accent4><a:srgbClr val="8064A2"/></a:accent4>` +
	`<a:accent5><a:srgbClr val="4BACC6"/></a:accent5>` +
	`<a:accent6><a:srgbClr val="F79646"/></a:accent6>` +
	`<a:hlink><a:srgbClr val="0000FF"/></a:hlink>` +
	`<a:folHlink><a:srgbClr val="800080"/></a:folHlink>` +
	`</a:clrScheme>` +
	`<a:fontScheme name="Office">` +
	`<a:majorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:majorFont>` +
	`<a:minorFont><a:latin typeface="Calibri"/><a:ea typeface=""/><a:cs typeface=""/></a:minorFont>` +
	`</a:fontScheme>` +
	`<a:fmtScheme name="Office">` +
	`<a:fillStyleLst>` + solidFill + solidFill + solidFill + `</a:fillStyleLst>` +
	`<a:lnStyleLst>` + line + line + line + `</a:lnStyleLst>` +
	`<a:effectStyleLst>` + effect + effect + effect + `</a:effectStyleLst>` +
	`<a:bgFillStyleLst>` + solidFill + solidFill + solidFill + `</a:bgFillStyleLst>` +
	`</a:fmtScheme>` +
	`</a:themeElements><a:objectDefaults/><a:extraClrSchemeLst/></a:theme>`

const (
	solidFill = `<a:solidFill><a:schemeClr val="phClr"/></a:solidFill>`
	line      = `<a:ln w="9525" cap="flat" cmpd="sng" algn="ctr">` + solidFill + `<a:prstDash val="solid"/></a:ln>`
	effect    = `<a:effectStyle><a:effectLst/></a:effectStyle>`
)

const (
	titleXfrm = `<a:xfrm><a:off x="457200" y="274638"/><a:ext cx="8229600" cy="1143000"/></a:xfrm>`
	bodyXfrm  = `<a:xfrm><a:off x="457200" y="1600200"/><a:ext cx="8229600" cy="4525963"/></a:xfrm>`

	titlePh = `<p:nvSpPr><p:cNvPr id="2" name="Title 1"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph type="title"/></p:nvPr></p:nvSpPr>`
	bodyPh  = `<p:nvSpPr><p:cNvPr id="3" name="Content Placeholder 2"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph idx="1"/></p:nvPr></p:nvSpPr>`

	masterBodyPh = `<p:nvSpPr><p:cNvPr id="3" name="Text Placeholder 2"/><p:cNvSpPr><a:spLocks noGrp="1"/></p:cNvSpPr><p:nvPr><p:ph type="body" idx="1"/></p:nvPr></p:nvSpPr>`

	promptTitle = `<a:p><a:r><a:rPr lang="en-US"/><a:t>Click to edit Master title style</a:t></a:r></a:p>`
	promptBody  = `<a:p><a:pPr lvl="0"/><a:r><a:rPr lang="en-US"/><a:t>Click to edit Master text styles</a:t></a:r></a:p>`
)

const slideMaster = xmlHeader +
	`<p:sldMaster ` + pmlRoot + `><p:cSld>` +
	`<p:bg><p:bgRef idx="1001"><a:schemeClr val="bg1"/></p:bgRef></p:bg>` +
	`<p:spTree>` + groupProps +
	`<p:sp>` + titlePh + `<p:spPr>` + titleXfrm + `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>` +
	`<p:txBody><a:bodyPr vert="horz" anchor="ctr"><a:normAutofit/></a:bodyPr><a:lstStyle/>` + promptTitle + `</p:txBody></p:sp>` +
	`<p:sp>` + masterBodyPh + `<p:spPr>` + bodyXfrm + `<a:prstGeom prst="rect"><a:avLst/></a:prstGeom></p:spPr>` +
	`<p:txBody><a:bodyPr vert="horz"><a:normAutofit/></a:bodyPr><a:lstStyle/>` + promptBody + `</p:txBody></p:sp>` +
	`</p:spTree></p:cSld>` +
	`<p:clrMap bg1="lt1" tx1="dk1" bg2="lt2" tx2="dk2" accent1="accent1" accent2="accent2" accent3="accent3" ` +
	`accent4="accent4" accent5="accent5" accent6="accent6" hlink="hlink" folHlink="folHlink"/>` +
	`<p:sldLayoutIdLst><p:sldLayoutId id="2147483649" r:id="rId1"/></p:sldLayoutIdLst>` +
	`<p:txStyles>` +
	`<p:titleStyle><a:lvl1pPr algn="ctr"><a:defRPr sz="3600"><a:solidFill><a:schemeClr val="tx1"/></a:solidFill>` +
	`<a:latin typeface="+mj-lt"/></a:defRPr></a:lvl1pPr></p:titleStyle>` +
	`<p:bodyStyle><a:lvl1pPr marL="0" indent="0"><a:buNone/><a:defRPr sz="1400"><a:solidFill><a:schemeClr val="tx1"/></a:solidFill>` +
	`<a:latin typeface="+mn-lt"/></a:defRPr></a:lvl1pPr></p:bodyStyle>` +
	`<p:otherStyle><a:defPPr><a:defRPr lang="en-US"/></a:defPPr></p:otherStyle>` +
	`</p:txStyles>` +
	`</p:sldMaster>`

const slideMasterRels = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="` + relBase + `slideLayout" Target="../slideLayouts/slideLayout1.xml"/>` +
	`<Relationship Id="rId2" Type="` + relBase + `theme" Target="../theme/theme1.xml"/>` +
	`</Relationships>`

const slideLayout = xmlHeader +
	`<p:sldLayout ` + pmlRoot + ` type="obj" preserve="1">` +
	`<p:cSld name="Title and Content"><p:spTree>` + groupProps +
	`<p:sp>` + titlePh + `<p:spPr/><p:txBody><a:bodyPr/><a:lstStyle/>` + promptTitle + `</p:txBody></p:sp>` +
	`<p:sp>` + bodyPh + `<p:spPr/><p:txBody><a:bodyPr/><a:lstStyle/>` + promptBody + `</p:txBody></p:sp>` +
	`</p:spTree></p:cSld>` +
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>` +
	`</p:sldLayout>`

const slideLayoutRels = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="` + relBase + `slideMaster" Target="../slideMasters/slideMaster1.xml"/>` +
	`</Relationships>`

const slideRels = xmlHeader +
	`<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">` +
	`<Relationship Id="rId1" Type="` + relBase + `slideLayout" Target="../slideLayouts/slideLayout1.xml"/>` +
	`</Relationships>`

var slideTmpl = mustTemplate("slide", xmlHeader+
	`<p:sld `+pmlRoot+`><p:cSld><p:spTree>`+groupProps+
	`<p:sp>`+titlePh+`<p:spPr/><p:txBody><a:bodyPr><a:normAutofit/></a:bodyPr><a:lstStyle/>`+
	`{{range .Title}}{{template "para" .}}{{end}}</p:txBody></p:sp>`+
	`<p:sp>`+bodyPh+`<p:spPr/><p:txBody><a:bodyPr><a:normAutofit/></a:bodyPr><a:lstStyle/>`+
	`{{range .Body}}{{template "para" .}}{{end}}</p:txBody></p:sp>`+
	`</p:spTree></p:cSld>`+
	`<p:clrMapOvr><a:masterClrMapping/></p:clrMapOvr>`+
	`</p:sld>`+
	`{{define "para"}}{{if .}}<a:p><a:r><a:rPr lang="en-US" dirty="0"/><a:t>{{xml .}}</a:t></a:r></a:p>{{else}}<a:p/>{{end}}{{end}}`)
