// Package agent assembles the self-contained remote parser script that
// SaveService's ssh trigger deploys to a save-hosting box (spec §4.8).
package agent

import (
	"bytes"
	"embed"
	"fmt"
	"text/template"

	"github.com/google/uuid"
)

// FormatVersion is the output-contract version stamped into every cache
// file the assembled script writes (spec §4.8 "Output contract").
const FormatVersion = 1

//go:embed templates/*.js.tmpl
var templatesFS embed.FS

// sectionOrder names the templates by basename: ParseFS registers each
// matched file under path.Base(name), not its full embedded path.
var sectionOrder = []string{
	"header.js.tmpl",
	"binaryreader.js.tmpl",
	"propertyreader.js.tmpl",
	"saveparser.js.tmpl",
	"clitrailer.js.tmpl",
}

// Builder assembles the remote parser script by concatenating, in order,
// a CLI header, BinaryReader, PropertyReader, SaveParser, and a fixed CLI
// trailer (spec §4.8 steps 1-5). Only the header is templated; the rest are
// verbatim JS sources.
type Builder struct {
	formatVersion int
	tmpl          *template.Template
}

// New parses the embedded templates once; the returned Builder is safe for
// concurrent use since Build only executes a pre-parsed template tree.
func New() (*Builder, error) {
	tmpl, err := template.ParseFS(templatesFS, "templates/*.js.tmpl")
	if err != nil {
		return nil, fmt.Errorf("agent: parsing templates: %w", err)
	}
	return &Builder{formatVersion: FormatVersion, tmpl: tmpl}, nil
}

// Build renders and concatenates every section into the final script. It
// satisfies saveservice.ScriptBuilder. Each call stamps a fresh build ID
// into the script so the cache files a given deploy writes can be traced
// back to the exact script that produced them (spec §4.8 "Output contract"
// diagnostics).
func (b *Builder) Build() ([]byte, error) {
	var out bytes.Buffer
	data := struct {
		FormatVersion int
		BuildID       string
	}{FormatVersion: b.formatVersion, BuildID: uuid.New().String()}

	for _, name := range sectionOrder {
		if err := b.tmpl.ExecuteTemplate(&out, name, data); err != nil {
			return nil, fmt.Errorf("agent: rendering %s: %w", name, err)
		}
		out.WriteByte('\n')
	}
	return out.Bytes(), nil
}
