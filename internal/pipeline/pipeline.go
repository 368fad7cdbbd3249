// Package pipeline wires the loader, document model, patcher and persistence
// together for the CLI commands.
package pipeline

import (
	"fmt"
	"os"

	"ratesync/internal/atomicfile"
	"ratesync/internal/check"
	"ratesync/internal/dataset"
	"ratesync/internal/jsdb"
	"ratesync/internal/logging"
	"ratesync/internal/patch"

	"github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Inputs are the loaded dataset and parsed target document.
type Inputs struct {
	DatasetPath string
	TargetPath  string
	Dataset     *dataset.Dataset
	Document    *jsdb.Document
}

// Load reads the dataset and parses the target document. Any failure is
// fatal for the run.
func Load(datasetPath, targetPath string, logger *zap.Logger) (*Inputs, error) {
	log := logging.Get(logger, logging.CategoryLoader)

	ds, err := dataset.Load(datasetPath)
	if err != nil {
		return nil, err
	}
	log.Debug("Dataset loaded", zap.String("path", datasetPath), zap.Int("codes", ds.Len()))

	doc, err := LoadDocument(targetPath)
	if err != nil {
		return nil, err
	}
	log.Debug("Document parsed", zap.String("path", targetPath), zap.Int("bytes", len(doc.Source())))

	return &Inputs{
		DatasetPath: datasetPath,
		TargetPath:  targetPath,
		Dataset:     ds,
		Document:    doc,
	}, nil
}

// LoadDocument reads and parses a target document.
func LoadDocument(path string) (*jsdb.Document, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read target: %w", err)
	}
	doc, err := jsdb.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("failed to parse target %s: %w", path, err)
	}
	return doc, nil
}

// Patch applies the dataset to the document in memory.
func (in *Inputs) Patch(opts patch.Options) (*patch.Result, error) {
	if opts.Logger != nil {
		opts.Logger = logging.Get(opts.Logger, logging.CategoryPatch)
	}
	res, err := patch.New(opts).Apply(in.Dataset, in.Document)
	if err != nil {
		return nil, fmt.Errorf("patch aborted: %w", err)
	}
	return res, nil
}

// Check compares the dataset with the document's current values.
func (in *Inputs) Check(opts check.Options) ([]check.Issue, error) {
	return check.Run(in.Dataset, in.Document, opts)
}

// Persist writes the patched document to path atomically and returns the
// number of bytes written.
func (in *Inputs) Persist(path string, logger *zap.Logger) (int, error) {
	data := in.Document.Bytes()
	if err := atomicfile.Write(path, data, 0644); err != nil {
		return 0, fmt.Errorf("failed to write %s: %w", path, err)
	}
	logging.Get(logger, logging.CategoryPersist).Info("Wrote patched document",
		zap.String("path", path),
		zap.String("size", humanize.Bytes(uint64(len(data)))))
	return len(data), nil
}

// Verify re-reads a written document and checks it against the dataset.
func (in *Inputs) Verify(path string, opts check.Options) ([]check.Issue, error) {
	doc, err := LoadDocument(path)
	if err != nil {
		return nil, err
	}
	return check.Run(in.Dataset, doc, opts)
}
