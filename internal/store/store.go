package store

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/pavelanni/grader/internal/model"

	_ "modernc.org/sqlite"
)

// ErrQuestionBankNotFound is returned when a question bank id does not exist.
var ErrQuestionBankNotFound = errors.New("question bank not found")

// ErrEvaluationNotFound is returned when an evaluation id does not exist.
var ErrEvaluationNotFound = errors.New("evaluation not found")

type Store struct {
	db *sql.DB
	// writeMu serializes writers so concurrent savers never race for the
	// SQLite write lock.
	writeMu sync.Mutex
}

func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath+"?_txlock=immediate&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if dbPath == ":memory:" {
		// Every connection would get its own empty in-memory database.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
	CREATE TABLE IF NOT EXISTS students (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL UNIQUE,
		email TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS question_banks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		total_marks INTEGER NOT NULL,
		mark_distribution TEXT NOT NULL DEFAULT 'in_paper',
		per_question_marks INTEGER NOT NULL DEFAULT 0,
		question_count INTEGER NOT NULL,
		questions TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE TABLE IF NOT EXISTS evaluations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		student_id INTEGER NOT NULL,
		question_bank_id INTEGER NOT NULL,
		answer_file_name TEXT NOT NULL DEFAULT '',
		total_marks_obtained INTEGER NOT NULL DEFAULT 0,
		total_marks_possible INTEGER NOT NULL DEFAULT 0,
		percentage REAL NOT NULL DEFAULT 0,
		parsed_answers TEXT NOT NULL DEFAULT '{}',
		evaluation_results TEXT NOT NULL DEFAULT '[]',
		remarks TEXT NOT NULL DEFAULT '{}',
		processing_status TEXT NOT NULL DEFAULT 'pending',
		created_at DATETIME NOT NULL,
		completed_at DATETIME,
		FOREIGN KEY (student_id) REFERENCES students(id),
		FOREIGN KEY (question_bank_id) REFERENCES question_banks(id)
	);

	CREATE INDEX IF NOT EXISTS idx_evaluations_student ON evaluations(student_id);
	CREATE INDEX IF NOT EXISTS idx_evaluations_bank ON evaluations(question_bank_id);

	CREATE TABLE IF NOT EXISTS metadata (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	`

func (s *Store) migrate() error {
	_, err := s.db.Exec(schema)
	return err
}

// CreateQuestionBank validates and stores a question bank.
func (s *Store) CreateQuestionBank(b model.QuestionBank) (int64, error) {
	if err := b.Validate(); err != nil {
		return 0, err
	}
	questions, err := json.Marshal(b.Questions)
	if err != nil {
		return 0, fmt.Errorf("encode questions: %w", err)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	res, err := s.db.Exec(
		`INSERT INTO question_banks (name, description, total_marks, mark_distribution, per_question_marks, question_count, questions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		b.Name, b.Description, b.TotalMarks, b.MarkDistribution, b.PerQuestionMarks, b.QuestionCount, string(questions), time.Now(),
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

const bankColumns = `id, name, description, total_marks, mark_distribution, per_question_marks, question_count, questions, created_at`

type scanner interface {
	Scan(dest ...any) error
}

func scanBank(row scanner) (model.QuestionBank, error) {
	var (
		b         model.QuestionBank
		questions string
	)
	if err := row.Scan(&b.ID, &b.Name, &b.Description, &b.TotalMarks, &b.MarkDistribution,
		&b.PerQuestionMarks, &b.QuestionCount, &questions, &b.CreatedAt); err != nil {
		return b, err
	}
	if err := json.Unmarshal([]byte(questions), &b.Questions); err != nil {
		return b, fmt.Errorf("decode questions of bank %d: %w", b.ID, err)
	}
	return b, nil
}

// QuestionBank returns a question bank by id.
func (s *Store) QuestionBank(id int64) (model.QuestionBank, error) {
	b, err := scanBank(s.db.QueryRow(`SELECT `+bankColumns+` FROM question_banks WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return b, fmt.Errorf("%w: %d", ErrQuestionBankNotFound, id)
	}
	return b, err
}

// ListQuestionBanks returns all question banks, newest first.
func (s *Store) ListQuestionBanks() ([]model.QuestionBank, error) {
	rows, err := s.db.Query(`SELECT ` + bankColumns + ` FROM question_banks ORDER BY id DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var banks []model.QuestionBank
	for rows.Next() {
		b, err := scanBank(rows)
		if err != nil {
			return nil, err
		}
		banks = append(banks, b)
	}
	return banks, rows.Err()
}

// SaveEvaluation stores a completed outcome for the student it names,
// creating the student on first sight.
func (s *Store) SaveEvaluation(bankID int64, fileName string, out model.EvaluationOutcome) (int64, error) {
	answers, err := json.Marshal(nonNilAnswers(out.Answers))
	if err != nil {
		return 0, fmt.Errorf("encode answers: %w", err)
	}
	items := out.Items
	if items == nil {
		items = []model.ItemResult{}
	}
	results, err := json.Marshal(items)
	if err != nil {
		return 0, fmt.Errorf("encode results: %w", err)
	}
	remarks, err := json.Marshal(nonNilRemarks(out.Remarks))
	if err != nil {
		return 0, fmt.Errorf("encode remarks: %w", err)
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	student, err := getOrCreateStudent(tx, out.StudentName)
	if err != nil {
		return 0, fmt.Errorf("student %q: %w", out.StudentName, err)
	}

	now := time.Now()
	var completedAt *time.Time
	if out.Status == model.StatusCompleted {
		completedAt = &now
	}
	res, err := tx.Exec(
		`INSERT INTO evaluations (student_id, question_bank_id, answer_file_name, total_marks_obtained, total_marks_possible,
		 percentage, parsed_answers, evaluation_results, remarks, processing_status, created_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		student.ID, bankID, fileName, out.TotalMarksObtained, out.TotalMarksPossible,
		out.Percentage, string(answers), string(results), string(remarks), out.Status, now, completedAt,
	)
	if err != nil {
		return 0, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, err
	}
	return id, tx.Commit()
}

func nonNilAnswers(m model.AnswerMap) model.AnswerMap {
	if m == nil {
		return model.AnswerMap{}
	}
	return m
}

func nonNilRemarks(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

const evaluationQuery = `
	SELECT e.id, e.student_id, st.name, e.question_bank_id, COALESCE(qb.name, ''), e.answer_file_name,
	       e.total_marks_obtained, e.total_marks_possible, e.percentage,
	       e.parsed_answers, e.evaluation_results, e.remarks, e.processing_status,
	       e.created_at, e.completed_at
	FROM evaluations e
	JOIN students st ON st.id = e.student_id
	LEFT JOIN question_banks qb ON qb.id = e.question_bank_id`

func scanEvaluation(row scanner) (model.EvaluationRecord, error) {
	var (
		r                         model.EvaluationRecord
		answers, results, remarks string
		completed                 sql.NullTime
	)
	if err := row.Scan(&r.ID, &r.StudentID, &r.StudentName, &r.QuestionBankID, &r.QuestionBankName, &r.FileName,
		&r.TotalMarksObtained, &r.TotalMarksPossible, &r.Percentage,
		&answers, &results, &remarks, &r.Status, &r.CreatedAt, &completed); err != nil {
		return r, err
	}
	if err := json.Unmarshal([]byte(answers), &r.Answers); err != nil {
		return r, fmt.Errorf("decode answers of evaluation %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(results), &r.Items); err != nil {
		return r, fmt.Errorf("decode results of evaluation %d: %w", r.ID, err)
	}
	if err := json.Unmarshal([]byte(remarks), &r.Remarks); err != nil {
		return r, fmt.Errorf("decode remarks of evaluation %d: %w", r.ID, err)
	}
	if completed.Valid {
		t := completed.Time
		r.CompletedAt = &t
	}
	return r, nil
}

func (s *Store) queryEvaluations(query string, args ...any) ([]model.EvaluationRecord, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var records []model.EvaluationRecord
	for rows.Next() {
		r, err := scanEvaluation(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// Evaluation returns an evaluation by id.
func (s *Store) Evaluation(id int64) (model.EvaluationRecord, error) {
	r, err := scanEvaluation(s.db.QueryRow(evaluationQuery+` WHERE e.id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return r, fmt.Errorf("%w: %d", ErrEvaluationNotFound, id)
	}
	return r, err
}

// ListEvaluations returns the evaluations of one question bank, or of all
// banks when bankID is zero, newest first.
func (s *Store) ListEvaluations(bankID int64) ([]model.EvaluationRecord, error) {
	if bankID == 0 {
		return s.queryEvaluations(evaluationQuery + ` ORDER BY e.id DESC`)
	}
	return s.queryEvaluations(evaluationQuery+` WHERE e.question_bank_id = ? ORDER BY e.id DESC`, bankID)
}

// SearchEvaluations returns evaluations whose student name contains name,
// ignoring case, newest first.
func (s *Store) SearchEvaluations(name string) ([]model.EvaluationRecord, error) {
	return s.queryEvaluations(evaluationQuery+` WHERE st.name LIKE ? ESCAPE '\' ORDER BY e.id DESC`, "%"+escapeLike(name)+"%")
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}

// Stats returns row counts and the average percentage of completed evaluations.
func (s *Store) Stats() (model.DatabaseStats, error) {
	var st model.DatabaseStats
	err := s.db.QueryRow(`SELECT
		(SELECT COUNT(*) FROM students),
		(SELECT COUNT(*) FROM question_banks),
		(SELECT COUNT(*) FROM evaluations)`).Scan(&st.StudentCount, &st.QuestionBankCount, &st.EvaluationCount)
	if err != nil {
		return st, err
	}
	var avg sql.NullFloat64
	err = s.db.QueryRow(`SELECT AVG(percentage) FROM evaluations WHERE processing_status = ?`,
		model.StatusCompleted).Scan(&avg)
	if err != nil {
		return st, err
	}
	if avg.Valid {
		st.AverageScore = &avg.Float64
	}
	return st, nil
}

// Backup writes a consistent copy of the database to path, which must not exist.
func (s *Store) Backup(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("backup target %s already exists", path)
	}
	if _, err := s.db.Exec(`VACUUM INTO ?`, path); err != nil {
		return fmt.Errorf("backup to %s: %w", path, err)
	}
	return nil
}

// Reset deletes every row from every table.
func (s *Store) Reset() error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()
	for _, table := range []string{"evaluations", "question_banks", "students", "metadata"} {
		if _, err := tx.Exec(`DELETE FROM ` + table); err != nil {
			return fmt.Errorf("clear %s: %w", table, err)
		}
	}
	if _, err := tx.Exec(`DELETE FROM sqlite_sequence`); err != nil {
		return fmt.Errorf("reset sequences: %w", err)
	}
	return tx.Commit()
}
