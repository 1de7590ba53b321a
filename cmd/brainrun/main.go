// Command brainrun runs one brain cycle over a JSON fixture and prints the
// resulting BrainState. Nothing is persisted.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ignite/perf-brain/internal/config"
	"github.com/ignite/perf-brain/internal/engine"
	"github.com/ignite/perf-brain/internal/engine/face"
	"github.com/ignite/perf-brain/internal/pkg/distlock"
	"github.com/ignite/perf-brain/internal/pkg/logger"
	repomem "github.com/ignite/perf-brain/internal/repository/memory"
)

func main() {
	fixture := flag.String("fixture", "", "dataset JSON (one dataset or an array)")
	cfgPath := flag.String("config", "", "path to config.yaml")
	org := flag.String("org", "", "organization id (default: first in fixture)")
	asOfFlag := flag.String("as-of", "", "analysis date, RFC 3339 or YYYY-MM-DD (default: now)")
	persona := flag.String("persona", "", "executive, operator or analyst")
	narrativeOnly := flag.Bool("narrative", false, "print only the narrative")
	flag.Parse()

	if *fixture == "" {
		log.Fatal("-fixture is required")
	}
	logger.SetLevel(logger.WARN)

	cfg := config.Default()
	if *cfgPath != "" {
		var err error
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Fatalf("load config: %v", err)
		}
	}

	reader, err := repomem.LoadFixture(*fixture)
	if err != nil {
		log.Fatal(err)
	}
	ctx := context.Background()
	if *org == "" {
		ids, _ := reader.OrganizationIDs(ctx)
		if len(ids) == 0 {
			log.Fatal("fixture holds no organization with channels")
		}
		*org = ids[0]
	}

	req := engine.CycleRequest{OrganizationID: *org, Trigger: engine.TriggerManual, Persona: face.Persona(*persona)}
	if *asOfFlag != "" {
		if req.AsOf, err = parseAsOf(*asOfFlag); err != nil {
			log.Fatalf("-as-of: %v", err)
		}
	}

	e, err := engine.New(reader, repomem.NewStore(), distlock.NewLocalFactory(), cfg.Brain)
	if err != nil {
		log.Fatal(err)
	}
	st, err := e.RunCycle(ctx, req)
	if err != nil {
		log.Fatal(err)
	}

	if *narrativeOnly {
		fmt.Println(st.Narrative)
		return
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(st); err != nil {
		log.Fatal(err)
	}
}

func parseAsOf(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse(time.DateOnly, s)
}
