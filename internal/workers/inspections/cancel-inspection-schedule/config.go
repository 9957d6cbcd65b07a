// internal/workers/inspections/cancel-inspection-schedule/config.go
package cancelinspectionschedule

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
