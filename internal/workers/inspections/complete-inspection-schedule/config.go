// internal/workers/inspections/complete-inspection-schedule/config.go
package completeinspectionschedule

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
