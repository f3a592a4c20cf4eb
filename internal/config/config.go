// Package config loads rasterd settings from the environment.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type EventsCfg struct {
	Enabled bool
	Brokers []string
	Topic   string
	Queue   int
	// Follow consumes the topic to evict rasters changed by other instances.
	Follow  bool
	GroupID string
	// Origin tags published events so an instance skips its own.
	Origin  string
}

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr           string
	LogLevel       string
	LogConsole     bool
	LogSampleN     int
	RedisAddr      string
	StoreOpTimeout time.Duration
	RegistrySize   int
	MaxCells       int
	H3Res          int
	// GeoTransform is the GDAL style transform attached to every raster.
	GeoTransform [6]float64
	Events       EventsCfg
	Metrics      MetricsCfg
}

var defaultGeoTransform = [6]float64{0, 1, 0, 0, 0, 1}

func FromEnv() Config {
	res := getint("H3_RES", 8)
	if res < 0 || res > 15 {
		res = 8
	}
	regSize := getint("REGISTRY_SIZE", 1024)
	if regSize <= 0 {
		regSize = 1024
	}

	origin := getenv("INSTANCE_ID", "")
	if origin == "" {
		origin, _ = os.Hostname()
	}

	gt, err := parseGeoTransform(getenv("GEOTRANSFORM", ""))
	if err != nil {
		gt = defaultGeoTransform
	}

	return Config{
		Addr:           getenv("ADDR", ":8090"),
		LogLevel:       getenv("LOG_LEVEL", "info"),
		LogConsole:     getbool("LOG_CONSOLE", false),
		LogSampleN:     getint("LOG_SAMPLE_N", 0),
		RedisAddr:      getenv("REDIS_ADDR", "localhost:6379"),
		StoreOpTimeout: getduration("STORE_OP_TIMEOUT", 250*time.Millisecond),
		RegistrySize:   regSize,
		MaxCells:       getint("MAX_CELLS", 1<<24),
		H3Res:          res,
		GeoTransform:   gt,
		Events: EventsCfg{
			Enabled: getbool("EVENTS_ENABLED", false),
			Brokers: splitList(getenv("KAFKA_BROKERS", "localhost:9092")),
			Topic:   getenv("KAFKA_TOPIC", "raster-events"),
			Queue:   getint("EVENTS_QUEUE", 1024),
			Follow:  getbool("EVENTS_FOLLOW", false),
			GroupID: getenv("KAFKA_GROUP_ID", "rasterd-"+origin),
			Origin:  origin,
		},
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    getenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func splitList(s string) []string {
	var out []string
	for p := range strings.SplitSeq(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// parse "x0,dx,rx,y0,ry,dy"; empty means identity
func parseGeoTransform(s string) ([6]float64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultGeoTransform, nil
	}
	parts := strings.Split(s, ",")
	if len(parts) != 6 {
		return [6]float64{}, fmt.Errorf("geotransform needs 6 coefficients, got %d", len(parts))
	}
	var gt [6]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return [6]float64{}, fmt.Errorf("geotransform coefficient %d: %w", i, err)
		}
		gt[i] = f
	}
	return gt, nil
}
