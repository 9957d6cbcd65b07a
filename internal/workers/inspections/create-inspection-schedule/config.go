// internal/workers/inspections/create-inspection-schedule/config.go
package createinspectionschedule

import "time"

type Config struct {
	Timeout time.Duration
}

func LoadConfig() *Config {
	return &Config{
		Timeout: 10 * time.Second,
	}
}
