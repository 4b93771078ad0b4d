package config

// boolOr dereferences an optional YAML boolean. Absent keys decode to nil.
func boolOr(v *bool, def bool) bool {
	if v == nil {
		return def
	}
	return *v
}

// orDefault returns def when value is the zero value of its type.
func orDefault[T comparable](value, def T) T {
	var zero T
	if value == zero {
		return def
	}
	return value
}

// DisableTimeOr reports logger.disable_time, or def when it is not set.
func (l Logger) DisableTimeOr(def bool) bool { return boolOr(l.DisableTime, def) }

// JSONFormatOr reports logger.json_format, or def when it is not set.
func (l Logger) JSONFormatOr(def bool) bool { return boolOr(l.JSONFormat, def) }

// IncludeLocationOr reports logger.include_location, or def when it is not set.
func (l Logger) IncludeLocationOr(def bool) bool { return boolOr(l.IncludeLocation, def) }

// SyncWritesOr reports storage.sync_writes, or def when it is not set.
func (s Storage) SyncWritesOr(def bool) bool { return boolOr(s.SyncWrites, def) }
