package store

// runMigrations executes all database migrations.
func (s *Store) runMigrations() error {
	migrations := []string{
		// Models table - trained shape classifiers
		`CREATE TABLE IF NOT EXISTS models (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			descriptor TEXT NOT NULL,
			samples INTEGER NOT NULL DEFAULT 0,
			accuracy REAL NOT NULL DEFAULT 0,
			active INTEGER NOT NULL DEFAULT 0,
			data BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Shape samples table - labelled edge-map patches for training
		`CREATE TABLE IF NOT EXISTS shape_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			label INTEGER NOT NULL CHECK(label IN (0, 1, 2)),
			width INTEGER NOT NULL,
			height INTEGER NOT NULL,
			image BLOB NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Calibrations table - one row per committed control set
		`CREATE TABLE IF NOT EXISTS calibrations (
			id TEXT PRIMARY KEY,
			color_width INTEGER NOT NULL,
			color_height INTEGER NOT NULL,
			committed_at DATETIME NOT NULL
		)`,

		// Calibration controls table - the frozen controls of a calibration
		`CREATE TABLE IF NOT EXISTS calibration_controls (
			id TEXT NOT NULL,
			calibration_id TEXT NOT NULL REFERENCES calibrations(id) ON DELETE CASCADE,
			seq INTEGER NOT NULL,
			type TEXT NOT NULL CHECK(type IN ('square', 'circle', 'slider')),
			bounds TEXT NOT NULL,
			depth REAL,
			PRIMARY KEY (calibration_id, id)
		)`,

		// Contact events table - the touch log
		`CREATE TABLE IF NOT EXISTS contact_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			calibration_id TEXT REFERENCES calibrations(id) ON DELETE SET NULL,
			control_id TEXT NOT NULL,
			control_type TEXT NOT NULL,
			difference REAL NOT NULL,
			frame_ts INTEGER NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Bindings table - routes touches on a control type to a plugin action
		`CREATE TABLE IF NOT EXISTS bindings (
			id TEXT PRIMARY KEY,
			control_type TEXT NOT NULL CHECK(control_type IN ('square', 'circle', 'slider')),
			plugin_name TEXT NOT NULL,
			action_name TEXT NOT NULL,
			config TEXT NOT NULL DEFAULT '{}',
			enabled INTEGER NOT NULL DEFAULT 1,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,

		// Settings table - stores application settings as key-value pairs
		`CREATE TABLE IF NOT EXISTS settings (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`,

		// Indexes for better query performance
		`CREATE INDEX IF NOT EXISTS idx_shape_samples_label ON shape_samples(label)`,
		`CREATE INDEX IF NOT EXISTS idx_calibration_controls_calibration_id ON calibration_controls(calibration_id)`,
		`CREATE INDEX IF NOT EXISTS idx_contact_events_calibration_id ON contact_events(calibration_id)`,
		`CREATE INDEX IF NOT EXISTS idx_models_active ON models(active)`,
		`CREATE INDEX IF NOT EXISTS idx_bindings_control_type ON bindings(control_type)`,
	}

	for _, migration := range migrations {
		if _, err := s.db.Exec(migration); err != nil {
			return err
		}
	}

	return nil
}
