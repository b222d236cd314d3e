// Package datasync provisions API roots and collections from a YAML description. Entities
// that already exist are left untouched, so a file can be applied repeatedly.
//
// A file holds one or more YAML documents of the form:
//
//	api_roots:
//	  - id: default
//	    title: Default API root
//	    default: true
//	    is_public: true
//	collections:
//	  - id: 8d4c2f94-8a1e-4f57-9a5e-7bd5b3f0c8e1
//	    api_root_id: default
//	    title: Indicators
//	    alias: indicators
//	    is_public: true
//
// Values may reference the environment with {{ .ENV.NAME }}.
package datasync

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"strings"

	"github.com/go-playground/validator/v10"
	pkgerrors "github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db"
	"github.com/eclecticiq/OpenTAXII-sub000/internal/taxiisrv/db/models"
)

type APIRootSpec struct {
	ID          string `yaml:"id" validate:"required,max=64"`
	Title       string `yaml:"title" validate:"required"`
	Description string `yaml:"description"`
	Default     bool   `yaml:"default"`
	IsPublic    bool   `yaml:"is_public"`
}

type CollectionSpec struct {
	ID            string `yaml:"id" validate:"required,max=64"`
	APIRootID     string `yaml:"api_root_id" validate:"required"`
	Title         string `yaml:"title" validate:"required"`
	Description   string `yaml:"description"`
	Alias         string `yaml:"alias"`
	IsPublic      bool   `yaml:"is_public"`
	IsPublicWrite bool   `yaml:"is_public_write"`
}

// Data is the merged content of every document of a file.
type Data struct {
	APIRoots    []APIRootSpec    `yaml:"api_roots" validate:"dive"`
	Collections []CollectionSpec `yaml:"collections" validate:"dive"`
}

// Report counts what Sync did.
type Report struct {
	APIRootsCreated    int `json:"api_roots_created"`
	APIRootsSkipped    int `json:"api_roots_skipped"`
	CollectionsCreated int `json:"collections_created"`
	CollectionsSkipped int `json:"collections_skipped"`
}

// LoadFile reads, preprocesses and parses the file at path.
func LoadFile(path string) (*Data, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, pkgerrors.Wrap(err, "failed to read data file")
	}
	raw, err = Preprocess(replaceTabsWithSpaces(raw))
	if err != nil {
		return nil, err
	}
	return Parse(raw)
}

// Parse decodes every YAML document in data and validates the result.
func Parse(data []byte) (*Data, error) {
	out := &Data{}
	if strings.Trim(strings.TrimSpace(string(data)), "- \n\t") == "" {
		return out, nil
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	for {
		var doc Data
		if err := decoder.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, pkgerrors.Wrap(err, "failed to decode YAML")
		}
		out.APIRoots = append(out.APIRoots, doc.APIRoots...)
		out.Collections = append(out.Collections, doc.Collections...)
	}
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(out); err != nil {
		return nil, pkgerrors.Wrap(err, "invalid data file")
	}
	return out, nil
}

// Sync creates the API roots and then the collections of data that do not exist yet.
func Sync(ctx context.Context, catalog db.CatalogManager, data *Data) (Report, error) {
	var report Report
	for _, spec := range data.APIRoots {
		existing, err := catalog.GetAPIRoot(ctx, spec.ID)
		if err != nil {
			return report, pkgerrors.Wrapf(err, "failed to look up api root %s", spec.ID)
		}
		if existing != nil {
			log.Ctx(ctx).Debug().Str("api_root", spec.ID).Msg("api root exists, skipping")
			report.APIRootsSkipped++
			continue
		}
		root := &models.APIRoot{
			ID:          spec.ID,
			Title:       spec.Title,
			Description: spec.Description,
			IsDefault:   spec.Default,
			IsPublic:    spec.IsPublic,
		}
		if err := catalog.AddAPIRoot(ctx, root); err != nil {
			return report, pkgerrors.Wrapf(err, "failed to create api root %s", spec.ID)
		}
		log.Ctx(ctx).Info().Str("api_root", spec.ID).Msg("api root created")
		report.APIRootsCreated++
	}

	for _, spec := range data.Collections {
		existing, err := catalog.GetCollection(ctx, spec.APIRootID, spec.ID)
		if err != nil {
			return report, pkgerrors.Wrapf(err, "failed to look up collection %s", spec.ID)
		}
		if existing != nil {
			log.Ctx(ctx).Debug().Str("collection", spec.ID).Msg("collection exists, skipping")
			report.CollectionsSkipped++
			continue
		}
		c := &models.Collection{
			ID:            spec.ID,
			APIRootID:     spec.APIRootID,
			Title:         spec.Title,
			Description:   spec.Description,
			Alias:         spec.Alias,
			IsPublic:      spec.IsPublic,
			IsPublicWrite: spec.IsPublicWrite,
		}
		if err := catalog.AddCollection(ctx, c); err != nil {
			return report, pkgerrors.Wrapf(err, "failed to create collection %s", spec.ID)
		}
		log.Ctx(ctx).Info().Str("collection", spec.ID).Str("api_root", spec.APIRootID).Msg("collection created")
		report.CollectionsCreated++
	}
	return report, nil
}

func replaceTabsWithSpaces(data []byte) []byte {
	return bytes.ReplaceAll(data, []byte("\t"), []byte("  "))
}
