package main

import (
	"context"
	"flag"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/athapong/concept-graph/pkg/config"
	"github.com/athapong/concept-graph/pkg/graph"
	"github.com/athapong/concept-graph/pkg/graph/processors"
	"github.com/athapong/concept-graph/pkg/graph/storage"
	"github.com/athapong/concept-graph/pkg/graph/visualizer"
	"github.com/athapong/concept-graph/services"
)

var (
	inputDir        = flag.String("input", "", "Directory containing input documents")
	workspaceID     = flag.Int64("workspace", 1, "Workspace to merge the extracted concepts into")
	envFile         = flag.String("env", ".env", "Path to environment file")
	outputFile      = flag.String("output", "concept_graph_view.json", "Output file path for the concept graph view")
	visualize       = flag.Bool("visualize", false, "Generate a visualization of the concept graph")
	visualizeOutput = flag.String("viz-output", "concept_graph.html", "Output file for the visualization")
	logLevel        = flag.String("log-level", "info", "Logging level (debug, info, warn, error)")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logger.Fatalf("Invalid log level: %v", err)
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	if *inputDir == "" {
		logger.Fatal("Input directory must be specified")
	}
	if err := config.LoadEnvFile(*envFile); err != nil {
		logger.Warnf("Error loading env file %s: %v", *envFile, err)
	}
	cfg, err := config.Load()
	if err != nil {
		logger.Fatalf("Invalid configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cg, err := services.NewConceptGraph(ctx, cfg, logger)
	if err != nil {
		logger.Fatalf("Failed to initialise concept graph: %v", err)
	}
	defer cg.Close()

	files, err := readInputFiles(*inputDir, cg.Pipeline.SupportedTypes())
	if err != nil {
		logger.Fatalf("Failed to read input directory: %v", err)
	}
	if len(files) == 0 {
		logger.Fatal("No input files found")
	}
	logger.Infof("Processing %d input files...", len(files))

	documents := make([]*graph.Document, 0, len(files))
	for _, file := range files {
		content, err := os.ReadFile(file)
		if err != nil {
			logger.Errorf("Failed to read file %s: %v", file, err)
			continue
		}
		documents = append(documents, &graph.Document{
			Name:     filepath.Base(file),
			MimeType: processors.DetectMimeType(file, "", content),
			Raw:      content,
			Metadata: map[string]interface{}{
				"filename": filepath.Base(file),
				"filepath": file,
			},
		})
	}

	results, err := cg.Pipeline.BatchProcess(ctx, *workspaceID, documents)
	if err != nil {
		logger.Errorf("Failed to process documents: %v", err)
	}

	builder := graph.NewGraphViewBuilder(*workspaceID)
	for _, result := range results {
		if result == nil {
			continue
		}
		if err := builder.AddUpload(result); err != nil {
			logger.Errorf("Failed to add upload to graph view: %v", err)
		}
	}
	view := builder.Generate()

	if err := storage.StoreGraph(*outputFile, view); err != nil {
		logger.Fatalf("Failed to store concept graph view: %v", err)
	}
	logger.Infof("Concept graph generated with %d nodes and %d edges", len(view.Nodes), len(view.Edges))
	logger.Infof("Concept graph view saved to %s", *outputFile)

	if *visualize {
		viz := visualizer.NewD3Visualizer(*visualizeOutput, filepath.Base(*inputDir))
		if err := viz.Visualize(view); err != nil {
			logger.Errorf("Failed to visualize concept graph: %v", err)
		} else {
			logger.Infof("Visualization saved to %s", *visualizeOutput)
		}
	}
}

// readInputFiles returns the files under dir whose extension maps to a
// type with a registered processor.
func readInputFiles(dir string, supported []string) ([]string, error) {
	accept := make(map[string]bool, len(supported))
	for _, t := range supported {
		accept[t] = true
	}

	var files []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if t, ok := processors.TypeForExtension(path); ok && accept[t] {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}
