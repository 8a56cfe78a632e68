package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/ehr/labimport/internal/domain/concept"
	"github.com/ehr/labimport/internal/domain/fieldmapping"
	"github.com/ehr/labimport/internal/domain/reconcile"
	"github.com/ehr/labimport/internal/platform/spreadsheet"
)

// reconcileOptions are the flags of the offline dry run.
type reconcileOptions struct {
	File      string
	Separator string
	Quote     string
	Charset   string
	MaxRows   int
	Mapping   string
	SampleID  string
	Catalog   string
	Concept   string
	Pending   string
	Format    string
}

func reconcileCmd() *cobra.Command {
	var o reconcileOptions
	cmd := &cobra.Command{
		Use:   "reconcile",
		Short: "Dry-run a mapping against an instrument export without a database",
		Long: "Parses an instrument export, validates the mapping against the concept's field tree and\n" +
			"reconciles the rows with a YAML list of pending tests. Nothing is written; the outcome and\n" +
			"the staged updates are printed as JSON.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReconcile(cmd.Context(), cmd.OutOrStdout(), o)
		},
	}

	f := cmd.Flags()
	f.StringVar(&o.File, "file", "", "Instrument export (CSV)")
	f.StringVar(&o.Separator, "separator", ",", `Column separator ("tab" and "space" are accepted)`)
	f.StringVar(&o.Quote, "quote", `"`, "Quote character")
	f.StringVar(&o.Charset, "charset", "", "Input charset, e.g. windows-1252 (default: UTF-8 with BOM sniffing)")
	f.IntVar(&o.MaxRows, "max-rows", 0, "Reject files with more data rows (0: unlimited)")
	f.StringVar(&o.Mapping, "mapping", "", "Mapping JSON: a saved field mapping or a bare concept mapping")
	f.StringVar(&o.SampleID, "sample-id", "", "Sample id column (overrides the one in the mapping)")
	f.StringVar(&o.Catalog, "catalog", "", "Concept catalog YAML")
	f.StringVar(&o.Concept, "concept", "", "Concept uuid (defaults to the mapping's root concept)")
	f.StringVar(&o.Pending, "pending", "", "Pending tests YAML")
	f.StringVar(&o.Format, "format", "json", `Output format: "json" or "fhir" (OperationOutcome)`)
	for _, name := range []string{"file", "mapping", "catalog", "pending"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func runReconcile(ctx context.Context, w io.Writer, o reconcileOptions) error {
	if o.Format != "json" && o.Format != "fhir" {
		return fmt.Errorf("unknown --format %q", o.Format)
	}

	catalog, err := concept.LoadCatalogFile(o.Catalog)
	if err != nil {
		return err
	}

	sep, err := spreadsheet.ParseRune(o.Separator, ',')
	if err != nil {
		return fmt.Errorf("--separator: %w", err)
	}
	quote, err := spreadsheet.ParseRune(o.Quote, '"')
	if err != nil {
		return fmt.Errorf("--quote: %w", err)
	}
	sheet, err := parseFile(o.File, spreadsheet.Options{
		Separator: sep,
		Quote:     quote,
		Charset:   o.Charset,
		MaxRows:   o.MaxRows,
	})
	if err != nil {
		return err
	}

	fm, err := loadMapping(o.Mapping)
	if err != nil {
		return err
	}
	if o.SampleID != "" {
		fm.SampleID = o.SampleID
	}
	fm.Headers = sheet.Headers
	fm.Separator, fm.Quote = string(sep), string(quote)

	conceptUUID := o.Concept
	if conceptUUID == "" && fm.Mapping != nil {
		conceptUUID = fm.Mapping.Concept
	}
	if conceptUUID == "" {
		return fmt.Errorf("--concept is required when the mapping names no concept")
	}
	c, err := catalog.GetByUUID(ctx, conceptUUID)
	if err != nil {
		return fmt.Errorf("concept %s: %w", conceptUUID, err)
	}
	field := fieldmapping.BuildFieldTree(c)
	if err := fieldmapping.Validate(field, *fm).Err(); err != nil {
		return err
	}

	items, err := loadPending(o.Pending)
	if err != nil {
		return err
	}

	out := reconcile.Scan(reconcile.Input{
		Field:   field,
		Mapping: *fm,
		Rows:    sheet.Rows,
		Items:   items,
	})

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if o.Format == "fhir" {
		return enc.Encode(out.OperationOutcome())
	}
	return enc.Encode(out)
}

func parseFile(path string, opts spreadsheet.Options) (*spreadsheet.Sheet, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open export: %w", err)
	}
	defer f.Close()

	sheet, err := spreadsheet.Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return sheet, nil
}

// loadMapping accepts either a saved FieldMapping document or the bare
// ConceptMapping tree an editor produces.
func loadMapping(path string) (*fieldmapping.FieldMapping, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read mapping: %w", err)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, fmt.Errorf("decode mapping %s: %w", path, err)
	}
	if _, ok := fields["mapping"]; ok {
		var fm fieldmapping.FieldMapping
		if err := json.Unmarshal(data, &fm); err != nil {
			return nil, fmt.Errorf("decode field mapping %s: %w", path, err)
		}
		return &fm, nil
	}

	var cm fieldmapping.ConceptMapping
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cm); err != nil {
		return nil, fmt.Errorf("decode concept mapping %s: %w", path, err)
	}
	return &fieldmapping.FieldMapping{Mapping: &cm}, nil
}

func loadPending(path string) ([]reconcile.PendingItem, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read pending tests: %w", err)
	}
	var items []reconcile.PendingItem
	if err := yaml.Unmarshal(data, &items); err != nil {
		return nil, fmt.Errorf("decode pending tests %s: %w", path, err)
	}
	return items, nil
}
