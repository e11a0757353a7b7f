// Package schedule provides schedules for recurring jobs such as the
// periodic refresh of profiles that are due for a sync. Configured
// schedules are cron expressions or descriptors ("@hourly", "@every 30m").
package schedule
