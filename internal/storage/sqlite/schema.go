package sqlite

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS gia_types (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS subjects (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	hash TEXT NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS codifier_themes (
	id INTEGER PRIMARY KEY,
	subject_id INTEGER NOT NULL REFERENCES subjects(id),
	codifier_id TEXT NOT NULL,
	name TEXT NOT NULL,
	UNIQUE (subject_id, codifier_id)
)`,
	`CREATE TABLE IF NOT EXISTS fipibank_problems (
	id INTEGER PRIMARY KEY,
	problem_id TEXT NOT NULL UNIQUE,
	url TEXT NOT NULL,
	condition_html TEXT NOT NULL,
	exam_number INTEGER
)`,
	`CREATE TABLE IF NOT EXISTS fipibank_problem_files (
	id INTEGER PRIMARY KEY,
	fipibank_problem_id INTEGER NOT NULL REFERENCES fipibank_problems(id),
	file_url TEXT NOT NULL
)`,
	`CREATE TABLE IF NOT EXISTS fipibank_problems_gia_types (
	fipibank_problem_id INTEGER NOT NULL REFERENCES fipibank_problems(id),
	gia_type_id INTEGER NOT NULL REFERENCES gia_types(id),
	PRIMARY KEY (fipibank_problem_id, gia_type_id)
)`,
	`CREATE TABLE IF NOT EXISTS fipibank_problems_subjects (
	fipibank_problem_id INTEGER NOT NULL REFERENCES fipibank_problems(id),
	subject_id INTEGER NOT NULL REFERENCES subjects(id),
	PRIMARY KEY (fipibank_problem_id, subject_id)
)`,
	`CREATE TABLE IF NOT EXISTS fipibank_problems_codifier_themes (
	fipibank_problem_id INTEGER NOT NULL REFERENCES fipibank_problems(id),
	codifier_theme_id INTEGER NOT NULL REFERENCES codifier_themes(id),
	PRIMARY KEY (fipibank_problem_id, codifier_theme_id)
)`,
	`CREATE INDEX IF NOT EXISTS fipibank_problems_exam_number_idx ON fipibank_problems (exam_number)`,
}

const (
	seedGiaTypeSQL = `INSERT INTO gia_types (name) VALUES (?) ON CONFLICT (name) DO NOTHING`

	upsertGiaTypeSQL = `INSERT INTO gia_types (name) VALUES (?)
ON CONFLICT (name) DO UPDATE SET name = excluded.name
RETURNING id`

	upsertSubjectSQL = `INSERT INTO subjects (name, hash) VALUES (?, ?)
ON CONFLICT (hash) DO UPDATE SET hash = excluded.hash
RETURNING id`

	upsertThemeSQL = `INSERT INTO codifier_themes (subject_id, codifier_id, name) VALUES (?, ?, ?)
ON CONFLICT (subject_id, codifier_id) DO UPDATE SET codifier_id = excluded.codifier_id
RETURNING id`

	insertProblemSQL = `INSERT INTO fipibank_problems (problem_id, url, condition_html) VALUES (?, ?, ?)
ON CONFLICT (problem_id) DO NOTHING
RETURNING id`

	insertFileSQL = `INSERT INTO fipibank_problem_files (fipibank_problem_id, file_url) VALUES (?, ?)`

	linkGiaTypeSQL = `INSERT INTO fipibank_problems_gia_types (fipibank_problem_id, gia_type_id) VALUES (?, ?)
ON CONFLICT DO NOTHING`

	linkSubjectSQL = `INSERT INTO fipibank_problems_subjects (fipibank_problem_id, subject_id) VALUES (?, ?)
ON CONFLICT DO NOTHING`

	linkThemeSQL = `INSERT INTO fipibank_problems_codifier_themes (fipibank_problem_id, codifier_theme_id) VALUES (?, ?)
ON CONFLICT DO NOTHING`

	problemsByThemeSQL = `SELECT p.problem_id, p.url, p.condition_html, p.exam_number
FROM fipibank_problems p
JOIN fipibank_problems_gia_types pg ON pg.fipibank_problem_id = p.id
JOIN gia_types g ON g.id = pg.gia_type_id
JOIN fipibank_problems_subjects ps ON ps.fipibank_problem_id = p.id
JOIN subjects s ON s.id = ps.subject_id
JOIN fipibank_problems_codifier_themes pt ON pt.fipibank_problem_id = p.id
JOIN codifier_themes t ON t.id = pt.codifier_theme_id AND t.subject_id = s.id
WHERE g.name = ? AND s.name = ? AND t.codifier_id = ?
ORDER BY p.id`

	problemsByExamNumberSQL = `SELECT problem_id, url, condition_html, exam_number
FROM fipibank_problems
WHERE exam_number = ?
ORDER BY id`
)
