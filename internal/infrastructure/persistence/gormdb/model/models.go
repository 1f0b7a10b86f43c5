package model

// All lists every table managed by auto-migration, parents first.
func All() []any {
	return []any{
		&Run{},
		&Detector{},
		&RunDetector{},
		&DataPass{},
		&DataPassRun{},
		&SimulationPass{},
		&SimulationPassRun{},
		&GaqDetector{},
		&QcFlagType{},
		&QcFlag{},
		&QcFlagEffectivePeriod{},
		&QcFlagVerification{},
		&AuditEvent{},
		&CacheEntry{},
	}
}
