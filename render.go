// Copyright 2016 - 2021 The excelize Authors. All rights reserved. Use of
// this source code is governed by a BSD-style license that can be found in
// the LICENSE file.

package doctmpl

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/richardlehane/mscfb"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"
)

// readAll drains an io.ReaderAt/size pair the way every entry point
// receives its template, per SPEC_FULL.md §5's io.ReaderAt-based signature
// (a caller handing in an *os.File or a bytes.Reader need not read it into
// memory itself first).
func readAll(tpl io.ReaderAt, size int64) ([]byte, error) {
	buf, err := io.ReadAll(io.NewSectionReader(tpl, 0, size))
	if err != nil {
		return nil, newDocumentError("read", "<template>", err)
	}
	return buf, nil
}

// OnMissingPolicy controls what a render does when it finishes with a
// non-empty RenderErrors: spec.md §7 mandates "no output", but an embedder
// may prefer to get the best-effort document back alongside the errors.
type OnMissingPolicy int

const (
	// OnMissingAbort discards the rendered bytes and returns only the
	// accumulated errors, per spec.md §7's default disposition.
	OnMissingAbort OnMissingPolicy = iota
	// OnMissingEmit returns the rendered bytes anyway, alongside the
	// accumulated errors, for callers that want best-effort output.
	OnMissingEmit
)

// RenderOptions configures a single RenderPPTX/RenderXLSX call beyond its
// context/principal (which are passed as separate explicit parameters, per
// SPEC_FULL.md §5, so a caller never has to remember to set them inside an
// options struct).
type RenderOptions struct {
	// OnMissingPolicy decides whether a recoverable-error render still
	// produces output bytes (see above); defaults to OnMissingAbort.
	OnMissingPolicy OnMissingPolicy

	// FailOnNonNumeric governs the xlsx numeric-coercion branch of C6: when
	// true, a cell whose resolved value cannot be coerced to a number is a
	// BadTagError rather than a plain-text fallback.
	FailOnNonNumeric bool

	// Logger receives structured progress/diagnostic events; a nil Logger
	// disables logging entirely (no singleton, no package-level logger).
	Logger *zap.Logger
}

func (o *RenderOptions) logger() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}
	return o.Logger
}

// RenderResult is the outcome of a render: either Bytes is populated (a
// complete, well-formed .pptx/.xlsx package) or Errors is non-empty (and,
// per OnMissingPolicy, Bytes may or may not also be populated).
type RenderResult struct {
	Bytes  []byte
	Errors *RenderErrors
}

// parseCache memoizes the unzipped part bytes of a package keyed by the
// blake2b-256 digest of its raw bytes, so repeated renders of the same
// uploaded template (a common pattern: one template, many data rows) skip
// re-reading the zip on every call. Each render still decodes the XML parts
// it needs. Entries are never evicted.
type parseCache struct {
	mu      sync.Mutex
	entries map[[32]byte]*cachedPackage
}

type cachedPackage struct {
	files map[string][]byte
	order []string
}

var globalParseCache = &parseCache{entries: map[[32]byte]*cachedPackage{}}

func (c *parseCache) load(raw []byte) (*cachedPackage, error) {
	digest := blake2b.Sum256(raw)

	c.mu.Lock()
	if cached, ok := c.entries[digest]; ok {
		c.mu.Unlock()
		return cached.clone(), nil
	}
	c.mu.Unlock()

	pkg, err := readZipPackage(raw)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.entries[digest] = pkg
	c.mu.Unlock()
	return pkg.clone(), nil
}

func (p *cachedPackage) clone() *cachedPackage {
	out := &cachedPackage{files: make(map[string][]byte, len(p.files)), order: append([]string(nil), p.order...)}
	for k, v := range p.files {
		cp := make([]byte, len(v))
		copy(cp, v)
		out.files[k] = cp
	}
	return out
}

// readZipPackage unzips raw into an in-memory part map, preserving the
// original entry order so the repacked zip's Content_Types/ordering stays
// stable (some Office readers are picky about [Content_Types].xml coming
// first).
func readZipPackage(raw []byte) (*cachedPackage, error) {
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return nil, newDocumentError("open", "<zip>", err)
	}
	pkg := &cachedPackage{files: map[string][]byte{}}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			return nil, newDocumentError("read", f.Name, err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, newDocumentError("read", f.Name, err)
		}
		pkg.files[f.Name] = data
		pkg.order = append(pkg.order, f.Name)
	}
	return pkg, nil
}

func writeZipPackage(pkg *cachedPackage) ([]byte, error) {
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, name := range pkg.order {
		w, err := zw.Create(name)
		if err != nil {
			return nil, newDocumentError("write", name, err)
		}
		if _, err := w.Write(pkg.files[name]); err != nil {
			return nil, newDocumentError("write", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return nil, newDocumentError("close", "<zip>", err)
	}
	return buf.Bytes(), nil
}

// sniffLegacyFormat detects a legacy OLE Compound File Binary package (the
// pre-OOXML .ppt/.xls format) so the driver can fail fast with
// UnsupportedFileTypeError instead of feeding garbage to the zip reader.
func sniffLegacyFormat(raw []byte) bool {
	if _, err := mscfb.New(bytes.NewReader(raw)); err == nil {
		return true
	}
	return false
}

func newEvalEnv(ctx map[string]any, principal Principal) evalEnv {
	return evalEnv{ctx: ctx, principal: principal, now: time.Now()}
}

// RenderPPTX implements C12's external interface for presentations: read
// the template from tpl/size, parse it, expand loop sections, substitute
// every text/table/chart placeholder, and return the repacked package. A
// nil io.Reader with a non-empty *RenderErrors means the render reached
// completion (no structural error) but found at least one unresolved tag,
// per spec.md §7; OnMissingEmit additionally returns the best-effort bytes.
func RenderPPTX(tpl io.ReaderAt, size int64, ctx map[string]any, principal Principal, opts RenderOptions) (io.Reader, *RenderErrors, error) {
	raw, err := readAll(tpl, size)
	if err != nil {
		return nil, nil, err
	}
	result, err := renderPPTXBytes(raw, ctx, principal, opts)
	if err != nil {
		return nil, nil, err
	}
	if result.Bytes == nil {
		return nil, result.Errors, nil
	}
	return bytes.NewReader(result.Bytes), result.Errors, nil
}

func renderPPTXBytes(raw []byte, ctx map[string]any, principal Principal, opts RenderOptions) (RenderResult, error) {
	log := opts.logger()
	if sniffLegacyFormat(raw) {
		return RenderResult{}, &UnsupportedFileTypeError{Detected: "legacy OLE compound file (pre-OOXML)"}
	}

	pkg, err := globalParseCache.load(raw)
	if err != nil {
		return RenderResult{}, err
	}
	if err := validatePresentationPackage(pkg); err != nil {
		return RenderResult{}, err
	}
	log.Debug("pptx package loaded", zap.Int("parts", len(pkg.files)))

	env := newEvalEnv(ctx, principal)
	errs := &RenderErrors{}

	slideNames := sortedSlideParts(pkg.files)
	var originalSlides []*Slide
	for _, name := range slideNames {
		var s Slide
		if err := xml.Unmarshal(pkg.files[name], &s); err != nil {
			return RenderResult{}, newDocumentError("parse", name, err)
		}
		originalSlides = append(originalSlides, &s)
	}

	plan, err := buildRenderPlan(originalSlides, ctx, principal, env, errs)
	if err != nil {
		return RenderResult{}, err
	}
	log.Debug("render plan built", zap.Int("slides", len(plan)))

	rendered := make([]*Slide, len(plan))
	for i, es := range plan {
		slideCtx := ctx
		if len(es.extra) > 0 {
			slideCtx = mergeContext(ctx, es.extra)
		}
		slideEnv := evalEnv{ctx: slideCtx, principal: principal, now: env.now}
		if err := renderSlide(es.slide, slideEnv, errs); err != nil {
			return RenderResult{}, err
		}
		rendered[i] = es.slide
	}

	if err := rewriteCharts(pkg, slideNames, rendered, env, errs); err != nil {
		return RenderResult{}, err
	}

	if !errs.Empty() && opts.OnMissingPolicy == OnMissingAbort {
		log.Info("render aborted: recoverable errors present", zap.Strings("errors", errs.Strings()))
		return RenderResult{Errors: errs}, nil
	}

	if err := writeSlidesBack(pkg, slideNames, rendered); err != nil {
		return RenderResult{}, err
	}

	out, err := writeZipPackage(pkg)
	if err != nil {
		return RenderResult{}, err
	}
	if errs.Empty() {
		return RenderResult{Bytes: out}, nil
	}
	return RenderResult{Bytes: out, Errors: errs}, nil
}

func renderSlide(s *Slide, env evalEnv, errs *RenderErrors) error {
	shapes := s.Shapes()
	tableIdx := 0
	for i := range shapes {
		shape := &shapes[i]
		switch {
		case shape.Text != nil && shape.Text.TxBody != nil:
			for _, p := range shape.Text.TxBody.Paragraphs {
				if err := reassembleParagraph(p, env, ModeNormal, errs); err != nil {
					return err
				}
			}
		case shape.Table != nil && shape.Table.Table() != nil:
			if err := expandTable(tableIdx, shape.Table.Table(), env, errs); err != nil {
				return err
			}
			tableIdx++
		}
	}
	s.SetShapes(shapes)
	return nil
}

// rewriteCharts walks every slide's chart shapes, loads the referenced
// chartN.xml part via the slide's relationship file, rewrites it with C10,
// and writes the result back into pkg. It matches rendered slides back to
// their original relationship file by position; a chart living inside a
// loop section (whose body was duplicated per item) shares its one
// chartN.xml part across every iteration's slide, which is why duplicated
// slides reuse rendered[i]'s chart rather than each needing a distinct
// part.
func rewriteCharts(pkg *cachedPackage, slideNames []string, rendered []*Slide, env evalEnv, errs *RenderErrors) error {
	for i, name := range slideNames {
		if i >= len(rendered) {
			continue
		}
		relData, ok := pkg.files[slideRelPartName(name)]
		if !ok {
			continue
		}
		chartRels := relationshipsOfType(relData, RelTypeChart)
		for _, shape := range rendered[i].Shapes() {
			if shape.Chart == nil {
				continue
			}
			target, ok := chartRels[shape.Chart.RelID]
			if !ok {
				continue
			}
			chartPart := resolvePartName(name, target)
			chartXML, ok := pkg.files[chartPart]
			if !ok {
				continue
			}
			if ctype, declared := partContentType(pkg.files[contentTypesPartName], chartPart); declared && ctype != ContentTypeChart {
				continue
			}
			mediaLookup := func(relID string) ([]byte, bool) {
				chartRelPart := relsPartFor(chartPart)
				chartRels := parseRelationships(pkg.files[chartRelPart])
				mediaTarget, ok := chartRels[relID]
				if !ok {
					return nil, false
				}
				data, ok := pkg.files[resolvePartName(chartPart, mediaTarget)]
				return data, ok
			}
			out, err := rewriteChart(chartXML, env, errs, mediaLookup)
			if err != nil {
				return err
			}
			pkg.files[chartPart] = out
		}
	}
	return nil
}

func writeSlidesBack(pkg *cachedPackage, slideNames []string, rendered []*Slide) error {
	for i, s := range rendered {
		var buf bytes.Buffer
		buf.WriteString(xml.Header)
		enc := xml.NewEncoder(&buf)
		if err := enc.Encode(s); err != nil {
			return newDocumentError("marshal", slideNames[minInt(i, len(slideNames)-1)], err)
		}
		if err := enc.Flush(); err != nil {
			return err
		}
		name := fmt.Sprintf("%s%d.xml", slidePartPrefix, i+1)
		pkg.files[name] = buf.Bytes()
		if !contains(pkg.order, name) {
			pkg.order = append(pkg.order, name)
		}
	}
	// Slides beyond the rendered set (shouldn't happen once loop expansion
	// lands every section) are left untouched; slide count growth from loop
	// expansion is expressed purely by adding new slideN.xml parts plus a
	// presentation.xml sldIdLst update, which the packaging layer's
	// relationship management (outside this engine's XML-text scope) is
	// expected to keep consistent.
	return nil
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func mergeContext(base map[string]any, extra map[string]any) map[string]any {
	out := make(map[string]any, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}

var slidePartNumRe = regexp.MustCompile(regexp.QuoteMeta(slidePartPrefix) + `(\d+)\.xml$`)

func sortedSlideParts(files map[string][]byte) []string {
	var names []string
	for name := range files {
		if slidePartNumRe.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return slidePartNum(names[i]) < slidePartNum(names[j])
	})
	return names
}

func slidePartNum(name string) int {
	m := slidePartNumRe.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

func slideRelPartName(slideName string) string {
	base := slideName[strings.LastIndex(slideName, "/")+1:]
	return slideRelsPrefix[:strings.LastIndex(slideRelsPrefix, "/")+1] + base + ".rels"
}

func relsPartFor(partName string) string {
	idx := strings.LastIndex(partName, "/")
	dir, base := partName[:idx], partName[idx+1:]
	return dir + "/_rels/" + base + ".rels"
}

// resolvePartName resolves a relationship Target (relative to fromPart's
// directory, per OPC addressing rules) into a normalized package part name.
func resolvePartName(fromPart, target string) string {
	if strings.HasPrefix(target, "/") {
		return strings.TrimPrefix(target, "/")
	}
	dir := fromPart[:strings.LastIndex(fromPart, "/")]
	segments := strings.Split(dir+"/"+target, "/")
	var stack []string
	for _, seg := range segments {
		switch seg {
		case "", ".":
			continue
		case "..":
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		default:
			stack = append(stack, seg)
		}
	}
	return strings.Join(stack, "/")
}

type relationshipXML struct {
	XMLName       xml.Name `xml:"Relationships"`
	Relationships []struct {
		ID     string `xml:"Id,attr"`
		Type   string `xml:"Type,attr"`
		Target string `xml:"Target,attr"`
	} `xml:"Relationship"`
}

func parseRelationships(data []byte) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	var rel relationshipXML
	if err := xml.Unmarshal(data, &rel); err != nil {
		return out
	}
	for _, r := range rel.Relationships {
		out[r.ID] = r.Target
	}
	return out
}

// relationshipsOfType is parseRelationships narrowed to a single
// relationship Type, so a caller resolving a specific kind of dependent
// part (a chart, say) does not have to trust that an arbitrary rel ID it
// was handed actually points at that kind of part.
func relationshipsOfType(data []byte, relType string) map[string]string {
	out := map[string]string{}
	if len(data) == 0 {
		return out
	}
	var rel relationshipXML
	if err := xml.Unmarshal(data, &rel); err != nil {
		return out
	}
	for _, r := range rel.Relationships {
		if r.Type == relType {
			out[r.ID] = r.Target
		}
	}
	return out
}

// contentTypesXML is [Content_Types].xml, the OPC part declaring which
// content type every other part in the package is.
type contentTypesXML struct {
	XMLName   xml.Name `xml:"Types"`
	Overrides []struct {
		PartName    string `xml:"PartName,attr"`
		ContentType string `xml:"ContentType,attr"`
	} `xml:"Override"`
}

func contentTypesDeclare(data []byte, contentType string) bool {
	if len(data) == 0 {
		return false
	}
	var ct contentTypesXML
	if err := xml.Unmarshal(data, &ct); err != nil {
		return false
	}
	for _, o := range ct.Overrides {
		if o.ContentType == contentType {
			return true
		}
	}
	return false
}

// partContentType looks up a single part's declared Override content type,
// keyed by its package-absolute name (e.g. "ppt/charts/chart1.xml").
func partContentType(data []byte, partName string) (string, bool) {
	if len(data) == 0 {
		return "", false
	}
	var ct contentTypesXML
	if err := xml.Unmarshal(data, &ct); err != nil {
		return "", false
	}
	want := "/" + partName
	for _, o := range ct.Overrides {
		if o.PartName == want {
			return o.ContentType, true
		}
	}
	return "", false
}

// validatePresentationPackage confirms raw declares itself a PresentationML
// package (a presentation part present, and at least one slide content-type
// override), so a misrouted .xlsx handed to RenderPPTX fails with a named
// UnsupportedFileTypeError instead of silently producing zero slides.
func validatePresentationPackage(pkg *cachedPackage) error {
	if _, ok := pkg.files[presentationPartName]; !ok {
		return &UnsupportedFileTypeError{Detected: "not a PresentationML package (missing " + presentationPartName + ")"}
	}
	if !contentTypesDeclare(pkg.files[contentTypesPartName], ContentTypeSlide) {
		return &UnsupportedFileTypeError{Detected: "not a PresentationML package (no " + ContentTypeSlide + " part declared)"}
	}
	return nil
}

// validateWorkbookPackage is validatePresentationPackage's SpreadsheetML
// counterpart for RenderXLSX.
func validateWorkbookPackage(pkg *cachedPackage) error {
	if _, ok := pkg.files[workbookPartName]; !ok {
		return &UnsupportedFileTypeError{Detected: "not a SpreadsheetML package (missing " + workbookPartName + ")"}
	}
	if !contentTypesDeclare(pkg.files[contentTypesPartName], ContentTypeWorksheet) {
		return &UnsupportedFileTypeError{Detected: "not a SpreadsheetML package (no " + ContentTypeWorksheet + " part declared)"}
	}
	return nil
}

// ExtractContextKeys implements C11's external interface: parse a template
// without any context bound and report every top-level identifier its tags
// reference.
func ExtractContextKeys(tpl io.ReaderAt, size int64) (ContextKeys, error) {
	raw, err := readAll(tpl, size)
	if err != nil {
		return ContextKeys{}, err
	}
	if sniffLegacyFormat(raw) {
		return ContextKeys{}, &UnsupportedFileTypeError{Detected: "legacy OLE compound file (pre-OOXML)"}
	}
	pkg, err := globalParseCache.load(raw)
	if err != nil {
		return ContextKeys{}, err
	}

	slideNames := sortedSlideParts(pkg.files)
	var slides []*Slide
	for _, name := range slideNames {
		var s Slide
		if err := xml.Unmarshal(pkg.files[name], &s); err != nil {
			return ContextKeys{}, newDocumentError("parse", name, err)
		}
		slides = append(slides, &s)
	}

	var chartTexts [][]string
	for _, name := range slideNames {
		relData := pkg.files[slideRelPartName(name)]
		chartRels := relationshipsOfType(relData, RelTypeChart)
		for _, target := range chartRels {
			chartPart := resolvePartName(name, target)
			chartXML, ok := pkg.files[chartPart]
			if !ok {
				continue
			}
			chartTexts = append(chartTexts, extractChartLabelTexts(chartXML))
		}
	}

	return extractKeys(slides, chartTexts)
}

// extractChartLabelTexts scans a chartN.xml part for <c:v> text nodes
// nested in <c:cat>/<c:tx> scope, mirroring rewriteChart's scope tracking,
// for use by the context-key extractor.
func extractChartLabelTexts(chartXML []byte) []string {
	decoder := xml.NewDecoder(bytes.NewReader(chartXML))
	var scopeStack []string
	var texts []string
	for {
		tok, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			scopeStack = append(scopeStack, localName(t.Name))
		case xml.EndElement:
			if len(scopeStack) > 0 {
				scopeStack = scopeStack[:len(scopeStack)-1]
			}
		case xml.CharData:
			if len(scopeStack) > 0 && scopeStack[len(scopeStack)-1] == "v" {
				for _, s := range scopeStack {
					if s == "cat" || s == "tx" {
						texts = append(texts, string(t))
						break
					}
				}
			}
		}
	}
	return texts
}

var worksheetPartNumRe = regexp.MustCompile(regexp.QuoteMeta(sheetPartPrefix) + `(\d+)\.xml$`)

func sortedWorksheetParts(files map[string][]byte) []string {
	var names []string
	for name := range files {
		if worksheetPartNumRe.MatchString(name) {
			names = append(names, name)
		}
	}
	sort.Slice(names, func(i, j int) bool {
		return worksheetPartNum(names[i]) < worksheetPartNum(names[j])
	})
	return names
}

func worksheetPartNum(name string) int {
	m := worksheetPartNumRe.FindStringSubmatch(name)
	if m == nil {
		return 0
	}
	n, _ := strconv.Atoi(m[1])
	return n
}

// RenderXLSX implements C12's external interface for spreadsheets: read the
// template, substitute every cell placeholder against ctx/principal with
// the numeric-coercion policy of opts.FailOnNonNumeric, and return the
// repacked workbook. Unlike RenderPPTX, there is no slide-loop analogue;
// every worksheet part is walked independently.
func RenderXLSX(tpl io.ReaderAt, size int64, ctx map[string]any, principal Principal, opts RenderOptions) (io.Reader, *RenderErrors, error) {
	raw, err := readAll(tpl, size)
	if err != nil {
		return nil, nil, err
	}
	result, err := renderXLSXBytes(raw, ctx, principal, opts)
	if err != nil {
		return nil, nil, err
	}
	if result.Bytes == nil {
		return nil, result.Errors, nil
	}
	return bytes.NewReader(result.Bytes), result.Errors, nil
}

func renderXLSXBytes(raw []byte, ctx map[string]any, principal Principal, opts RenderOptions) (RenderResult, error) {
	log := opts.logger()
	if sniffLegacyFormat(raw) {
		return RenderResult{}, &UnsupportedFileTypeError{Detected: "legacy OLE compound file (pre-OOXML)"}
	}

	pkg, err := globalParseCache.load(raw)
	if err != nil {
		return RenderResult{}, err
	}
	if err := validateWorkbookPackage(pkg); err != nil {
		return RenderResult{}, err
	}
	log.Debug("xlsx package loaded", zap.Int("parts", len(pkg.files)))

	sharedStrings, err := parseSharedStrings(pkg.files["xl/sharedStrings.xml"])
	if err != nil {
		return RenderResult{}, err
	}

	env := newEvalEnv(ctx, principal)
	errs := &RenderErrors{}

	sheetNames := sortedWorksheetParts(pkg.files)
	for _, name := range sheetNames {
		out, err := rewriteWorksheetXML(pkg.files[name], sharedStrings, env, errs, opts.FailOnNonNumeric)
		if err != nil {
			return RenderResult{}, err
		}
		pkg.files[name] = out
	}

	if !errs.Empty() && opts.OnMissingPolicy == OnMissingAbort {
		log.Info("render aborted: recoverable errors present", zap.Strings("errors", errs.Strings()))
		return RenderResult{Errors: errs}, nil
	}

	out, err := writeZipPackage(pkg)
	if err != nil {
		return RenderResult{}, err
	}
	if errs.Empty() {
		return RenderResult{Bytes: out}, nil
	}
	return RenderResult{Bytes: out, Errors: errs}, nil
}
