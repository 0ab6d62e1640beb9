package registry

type migration struct {
	version    int
	statements []string
}

var migrations = []migration{
	{
		version: 1,
		statements: []string{
			`CREATE TABLE IF NOT EXISTS departments (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				public_id TEXT NOT NULL UNIQUE,
				name TEXT NOT NULL UNIQUE,
				description TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS positions (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				public_id TEXT NOT NULL UNIQUE,
				title TEXT NOT NULL,
				department_id INTEGER NOT NULL REFERENCES departments(id),
				description TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS people (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				public_id TEXT NOT NULL UNIQUE,
				first_name TEXT NOT NULL,
				last_name TEXT NOT NULL,
				email TEXT NOT NULL UNIQUE,
				phone TEXT NOT NULL DEFAULT '',
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
			`CREATE TABLE IF NOT EXISTS employment (
				id INTEGER PRIMARY KEY AUTOINCREMENT,
				person_id INTEGER NOT NULL REFERENCES people(id) ON DELETE CASCADE,
				position_id INTEGER NOT NULL REFERENCES positions(id),
				start_date TEXT NOT NULL,
				end_date TEXT,
				is_active INTEGER NOT NULL DEFAULT 1,
				created_at TEXT NOT NULL,
				updated_at TEXT NOT NULL
			)`,
		},
	},
	{
		version: 2,
		statements: []string{
			`CREATE INDEX IF NOT EXISTS idx_positions_department ON positions(department_id)`,
			`CREATE INDEX IF NOT EXISTS idx_employment_person ON employment(person_id)`,
			`CREATE INDEX IF NOT EXISTS idx_employment_position ON employment(position_id)`,
			`CREATE INDEX IF NOT EXISTS idx_people_name ON people(last_name, first_name)`,
		},
	},
}
