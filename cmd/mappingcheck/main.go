package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/joseph-ayodele/receipt-capture/internal/common"
	"github.com/joseph-ayodele/receipt-capture/internal/mapping"
)

// Loads a field-mapping directory the way the service would and reports what
// survived, so mapping edits can be checked before deployment.
func main() {
	var (
		dir         = flag.String("dir", "", "field mappings directory (defaults to FIELD_MAPPINGS_DIR)")
		defaultPath = flag.String("default", "", "default mapping file (defaults to FIELD_MAPPING_DEFAULT)")
		lenient     = flag.Bool("lenient", false, "allow unknown transformation/validation names")
	)
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	cfg := common.LoadConfig().Mappings
	if *dir != "" {
		cfg.Dir = *dir
	}
	if *defaultPath != "" {
		cfg.DefaultPath = *defaultPath
	}
	cfg.Strict = !*lenient

	registry, err := mapping.NewRegistry(cfg, logger)
	if err != nil {
		logger.Error("failed to build mapping registry", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()
	names, err := registry.ContentTypes(ctx)
	if err != nil {
		logger.Error("failed to load mappings", "dir", cfg.Dir, "error", err)
		os.Exit(1)
	}

	for _, name := range names {
		m, err := registry.Get(ctx, name)
		if err != nil {
			continue
		}
		columns := 0
		if m.LineItems != nil {
			columns = len(m.LineItems.Columns)
		}
		threshold := "default"
		if m.ConfidenceThreshold != nil {
			threshold = fmt.Sprintf("%.2f", *m.ConfidenceThreshold)
		}
		fmt.Printf("%-32s model=%-20s threshold=%-8s fields=%-3d lineItemColumns=%d\n",
			name, orDash(m.Model), threshold, len(m.Fields), columns)
	}

	if def, err := registry.Default(ctx); err == nil {
		fmt.Printf("%-32s fields=%d (default mapping)\n", orDash(def.ContentType), len(def.Fields))
	}

	fmt.Printf("%d mapping(s) loaded from %s\n", len(names), cfg.Dir)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
