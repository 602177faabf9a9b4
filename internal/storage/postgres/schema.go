package postgres

var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS gia_types (
	id SERIAL PRIMARY KEY,
	name VARCHAR(3) NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS subjects (
	id SERIAL PRIMARY KEY,
	name TEXT NOT NULL,
	hash TEXT NOT NULL UNIQUE
)`,
	`CREATE TABLE IF NOT EXISTS codifier_themes (
	id SERIAL PRIMARY KEY,
	subject_id INTEGER NOT NULL REFERENCES subjects(id),
	codifier_id TEXT NOT NULL,
	name TEXT NOT NULL,
	UNIQUE (subject_id, codifier_id)
)`,
	`CREATE TABLE IF NOT EXISTS fipibank_problems (
	id SERIAL PRIMARY KEY,
	problem_id TEXT NOT NULL UNIQUE,
	url TEXT NOT NULL,
	condition_html TEXT NOT NULL,
	exam_number INTEGER
)`,
	`CREATE TABLE IF NOT EXISTS fipibank_problem_files (
	id SERIAL PRIMARY KEY,
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
	seedGiaTypeSQL = `INSERT INTO gia_types (name) VALUES ($1) ON CONFLICT (name) DO NOTHING`

	lockSubjectSQL = `SELECT pg_advisory_xact_lock(hashtext($1))`

	// DO NOTHING leaves the shared gia_types row unlocked so batches of
	// different subjects do not queue behind each other.
	giaTypeIDSQL = `WITH ins AS (
	INSERT INTO gia_types (name) VALUES ($1)
	ON CONFLICT (name) DO NOTHING
	RETURNING id
)
SELECT id FROM ins
UNION ALL
SELECT id FROM gia_types WHERE name = $1
LIMIT 1`

	upsertSubjectSQL = `INSERT INTO subjects (name, hash) VALUES ($1, $2)
ON CONFLICT (hash) DO UPDATE SET hash = EXCLUDED.hash
RETURNING id`

	upsertThemeSQL = `INSERT INTO codifier_themes (subject_id, codifier_id, name) VALUES ($1, $2, $3)
ON CONFLICT (subject_id, codifier_id) DO UPDATE SET codifier_id = EXCLUDED.codifier_id
RETURNING id`

	insertProblemSQL = `INSERT INTO fipibank_problems (problem_id, url, condition_html) VALUES ($1, $2, $3)
ON CONFLICT (problem_id) DO NOTHING
RETURNING id`

	insertFileSQL = `INSERT INTO fipibank_problem_files (fipibank_problem_id, file_url) VALUES ($1, $2)`

	linkGiaTypeSQL = `INSERT INTO fipibank_problems_gia_types (fipibank_problem_id, gia_type_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`

	linkSubjectSQL = `INSERT INTO fipibank_problems_subjects (fipibank_problem_id, subject_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`

	linkThemeSQL = `INSERT INTO fipibank_problems_codifier_themes (fipibank_problem_id, codifier_theme_id) VALUES ($1, $2)
ON CONFLICT DO NOTHING`

	problemsByThemeSQL = `SELECT p.problem_id, p.url, p.condition_html, p.exam_number
FROM fipibank_problems p
JOIN fipibank_problems_gia_types pg ON pg.fipibank_problem_id = p.id
JOIN gia_types g ON g.id = pg.gia_type_id
JOIN fipibank_problems_subjects ps ON ps.fipibank_problem_id = p.id
JOIN subjects s ON s.id = ps.subject_id
JOIN fipibank_problems_codifier_themes pt ON pt.fipibank_problem_id = p.id
JOIN codifier_themes t ON t.id = pt.codifier_theme_id AND t.subject_id = s.id
WHERE g.name = $1 AND s.name = $2 AND t.codifier_id = $3
ORDER BY p.id`

	problemsByExamNumberSQL = `SELECT problem_id, url, condition_html, exam_number
FROM fipibank_problems
WHERE exam_number = $1
ORDER BY id`

	setExamNumberSQL = `UPDATE fipibank_problems SET exam_number = $1 WHERE problem_id = ANY($2)`
)
