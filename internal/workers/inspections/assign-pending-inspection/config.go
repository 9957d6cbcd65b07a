// internal/workers/inspections/assign-pending-inspection/config.go
package assignpendinginspection

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
