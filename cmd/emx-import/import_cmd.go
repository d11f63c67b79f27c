package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"emxloader/internal/importer"
	"emxloader/internal/ontology"
	"emxloader/internal/service"
	"emxloader/internal/source"
	"emxloader/pkg/domain"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

type importOptions struct {
	JobPath   string
	Sources   []string
	Ontology  string
	Action    string
	User      string
	Superuser bool
}

type importSummary struct {
	Report     *importer.Report `json:"report"`
	Ledger     *importer.Ledger `json:"ledger,omitempty"`
	Reindexed  []string         `json:"reindexed,omitempty"`
	ArchiveKey string           `json:"archiveKey,omitempty"`
	Error      string           `json:"error,omitempty"`
}

func newImportCmd(root *rootOptions) *cobra.Command {
	var opts importOptions
	cmd := &cobra.Command{
		Use:   "import --job <metadata.yaml> --source <file|dir> [--source ...]",
		Short: "Run one import and print its report as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(opts.JobPath) == "" {
				return errors.New("--job is required")
			}
			if len(opts.Sources) == 0 && opts.Ontology == "" {
				return errors.New("--source or --ontology is required")
			}
			meta, err := loadMetaData(opts.JobPath)
			if err != nil {
				return err
			}
			src, err := openSources(opts.Sources, opts.Ontology, &meta)
			if err != nil {
				return err
			}
			defer func() { _ = src.Close() }()

			return withApp(cmd, root, func(a *app) error {
				res, importErr := a.svc.Import(cmd.Context(), service.Request{
					Source:    src,
					MetaData:  meta,
					Action:    opts.Action,
					Principal: domain.Principal{Username: opts.User, Superuser: opts.Superuser},
				})
				if res != nil {
					summary := importSummary{
						Report:     res.Report,
						Reindexed:  res.Reindexed,
						ArchiveKey: res.ArchiveKey,
					}
					if importErr != nil {
						summary.Ledger = res.Ledger
						summary.Error = importErr.Error()
					}
					enc := json.NewEncoder(cmd.OutOrStdout())
					enc.SetIndent("", "  ")
					if err := enc.Encode(summary); err != nil {
						return err
					}
				}
				return importErr
			})
		},
	}
	cmd.Flags().StringVar(&opts.JobPath, "job", "", "YAML file with the parsed metadata (entities, packages, tags)")
	cmd.Flags().StringSliceVar(&opts.Sources, "source", nil, "workbook, CSV file or directory of CSV files; the first source wins per sheet")
	cmd.Flags().StringVar(&opts.Ontology, "ontology", "", "workbook or CSV with an ontologyTerm sheet whose synonyms are imported")
	cmd.Flags().StringVar(&opts.Action, "action", string(domain.ActionAddUpdateExisting), "ADD, ADD_UPDATE_EXISTING or UPDATE")
	cmd.Flags().StringVar(&opts.User, "user", "", "user importing the data")
	cmd.Flags().BoolVar(&opts.Superuser, "superuser", false, "import as a superuser; no permissions are granted")
	return cmd
}

// loadMetaData decodes the parsed metadata from a YAML file.
func loadMetaData(path string) (domain.ParsedMetaData, error) {
	f, err := os.Open(path)
	if err != nil {
		return domain.ParsedMetaData{}, fmt.Errorf("open job: %w", err)
	}
	defer func() { _ = f.Close() }()
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	var meta domain.ParsedMetaData
	if err := dec.Decode(&meta); err != nil {
		return domain.ParsedMetaData{}, fmt.Errorf("decode job %s: %w", path, err)
	}
	for _, e := range meta.Entities {
		if err := e.Validate(); err != nil {
			return domain.ParsedMetaData{}, fmt.Errorf("job %s: %w", path, err)
		}
	}
	return meta, nil
}

// openSources combines the row sources. With an ontology the synonym sheet
// is appended and its metadata added to meta when absent.
func openSources(paths []string, ontologyPath string, meta *domain.ParsedMetaData) (source.Combined, error) {
	var combined source.Combined
	for _, p := range paths {
		src, err := source.Open(p)
		if err != nil {
			_ = combined.Close()
			return nil, err
		}
		combined = append(combined, src)
	}
	if ontologyPath == "" {
		return combined, nil
	}
	termSrc, err := source.Open(ontologyPath)
	if err != nil {
		_ = combined.Close()
		return nil, err
	}
	defer func() { _ = termSrc.Close() }()
	sheet := ontology.TermEntity
	if names := termSrc.EntityNames(); len(names) == 1 && !slices.Contains(names, sheet) {
		sheet = names[0]
	}
	terms, err := ontology.LoadTerms(termSrc, sheet)
	if err != nil {
		_ = combined.Close()
		return nil, err
	}
	combined = append(combined, ontology.NewSynonymSource(terms, nil, nil))
	if _, ok := meta.Entity(ontology.EntityName); !ok {
		meta.Entities = append(meta.Entities, ontology.SynonymMetaData())
	}
	return combined, nil
}
