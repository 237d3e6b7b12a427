package cron_config

type Config struct {
	// Heartbeat check, every minute
	CronScheduleHeartbeat string `env:"CRON_SCHEDULE_HEARTBEAT" envDefault:"0 * * * * *"`
	// GeoIP database refresh, daily at 4am
	CronScheduleGeoIPRefresh string `env:"CRON_SCHEDULE_GEOIP_REFRESH" envDefault:"0 0 4 * * *"`
	// Token inventory flush, every 5 minutes
	CronScheduleTokenFlush string `env:"CRON_SCHEDULE_TOKEN_FLUSH" envDefault:"0 */5 * * * *"`
}
