package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// #region settings

// Engine kinds accepted by ADVISOR_ENGINE.
const (
	EngineGRPC    = "grpc"
	EngineCatalog = "catalog"
	EngineNone    = "none"
)

// BridgeSettings selects and locates the classification engine.
type BridgeSettings struct {
	Engine      string
	Module      string
	SearchPaths []string
	Addr        string
	DBPath      string
	CallTimeout time.Duration
}

// LoadBridgeSettings reads ADVISOR_* variables. The working directory is
// always the first search path.
func LoadBridgeSettings(lookup LookupFunc) (BridgeSettings, error) {
	s := BridgeSettings{
		Engine: strings.ToLower(envOr(lookup, "ADVISOR_ENGINE", EngineGRPC)),
		Module: envOr(lookup, "ADVISOR_MODULE", "asset"),
		Addr:   envOr(lookup, "ADVISOR_ADDR", "localhost:50061"),
		DBPath: envOr(lookup, "ADVISOR_DB", "advisor.db"),
	}

	switch s.Engine {
	case EngineGRPC, EngineCatalog, EngineNone:
	default:
		return BridgeSettings{}, fmt.Errorf("ADVISOR_ENGINE %q: want grpc, catalog or none", s.Engine)
	}

	if wd, err := os.Getwd(); err == nil {
		s.SearchPaths = append(s.SearchPaths, wd)
	}
	if raw := envOr(lookup, "ADVISOR_PATHS", ""); raw != "" {
		for _, p := range filepath.SplitList(raw) {
			if p != "" {
				s.SearchPaths = append(s.SearchPaths, p)
			}
		}
	}

	timeout, err := time.ParseDuration(envOr(lookup, "ADVISOR_CALL_TIMEOUT", "2s"))
	if err != nil {
		return BridgeSettings{}, fmt.Errorf("ADVISOR_CALL_TIMEOUT: %w", err)
	}
	if timeout < 0 {
		return BridgeSettings{}, fmt.Errorf("ADVISOR_CALL_TIMEOUT must be >= 0")
	}
	s.CallTimeout = timeout

	return s, nil
}

func envOr(lookup LookupFunc, key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

// #endregion settings
