package domain

import "fmt"

// Identity is the authenticated student an attempt is attributed to.
// Email is the unique key.
type Identity struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// TimeLimit is the declared duration of a quiz.
type TimeLimit struct {
	Hours   int `json:"hours"`
	Minutes int `json:"minutes"`
	Seconds int `json:"seconds"`
}

// TotalSeconds flattens the limit into seconds. Negative components count as zero.
func (t TimeLimit) TotalSeconds() int {
	total := nonNegative(t.Hours)*3600 + nonNegative(t.Minutes)*60 + nonNegative(t.Seconds)
	return total
}

// Question models a multiple choice question with exactly one correct choice.
type Question struct {
	ID            string   `json:"id"`
	Text          string   `json:"text"`
	Choices       []string `json:"choices"`
	CorrectAnswer string   `json:"correctAnswer"`
	Points        int      `json:"points"`
}

// HasChoice reports whether choice is one of the question's choices.
func (q Question) HasChoice(choice string) bool {
	for _, c := range q.Choices {
		if c == choice {
			return true
		}
	}
	return false
}

// Quiz is a timed collection of questions. Read-only to the attempt core.
type Quiz struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description"`
	Instructions string     `json:"instructions"`
	TimeLimit    TimeLimit  `json:"timeLimit"`
	Questions    []Question `json:"questions"`
}

// Question looks up a question by ID.
func (q Quiz) Question(id string) (Question, bool) {
	for _, question := range q.Questions {
		if question.ID == id {
			return question, true
		}
	}
	return Question{}, false
}

// QuestionView is a question without its correct answer.
type QuestionView struct {
	ID      string   `json:"id"`
	Text    string   `json:"text"`
	Choices []string `json:"choices"`
	Points  int      `json:"points"`
}

// QuizView is what a student sees before and during an attempt.
type QuizView struct {
	ID           string         `json:"id"`
	Title        string         `json:"title"`
	Description  string         `json:"description"`
	Instructions string         `json:"instructions"`
	TimeLimit    TimeLimit      `json:"timeLimit"`
	Questions    []QuestionView `json:"questions"`
}

// View strips correct answers from the quiz.
func (q Quiz) View() QuizView {
	questions := make([]QuestionView, 0, len(q.Questions))
	for _, question := range q.Questions {
		questions = append(questions, QuestionView{
			ID:      question.ID,
			Text:    question.Text,
			Choices: append([]string(nil), question.Choices...),
			Points:  question.Points,
		})
	}
	return QuizView{
		ID:           q.ID,
		Title:        q.Title,
		Description:  q.Description,
		Instructions: q.Instructions,
		TimeLimit:    q.TimeLimit,
		Questions:    questions,
	}
}

// Validate checks the invariants the attempt core relies on: a quiz ID, a
// non-negative time limit, and questions with unique IDs, positive points and
// a correct answer that is one of their choices.
func (q Quiz) Validate() error {
	if q.ID == "" {
		return fmt.Errorf("%w: missing id", ErrInvalidQuiz)
	}
	if q.TimeLimit.Hours < 0 || q.TimeLimit.Minutes < 0 || q.TimeLimit.Seconds < 0 {
		return fmt.Errorf("%w: %s has a negative time limit", ErrInvalidQuiz, q.ID)
	}
	seen := make(map[string]struct{}, len(q.Questions))
	for i, question := range q.Questions {
		switch {
		case question.ID == "":
			return fmt.Errorf("%w: %s question %d has no id", ErrInvalidQuiz, q.ID, i)
		case question.Points <= 0:
			return fmt.Errorf("%w: %s question %s has %d points", ErrInvalidQuiz, q.ID, question.ID, question.Points)
		case !question.HasChoice(question.CorrectAnswer):
			return fmt.Errorf("%w: %s question %s has no matching correct choice", ErrInvalidQuiz, q.ID, question.ID)
		}
		if _, dup := seen[question.ID]; dup {
			return fmt.Errorf("%w: %s repeats question %s", ErrInvalidQuiz, q.ID, question.ID)
		}
		seen[question.ID] = struct{}{}
	}
	return nil
}

// Answers maps question IDs to the chosen choice.
type Answers map[string]string

// Clone returns an independent copy; nil stays nil.
func (a Answers) Clone() Answers {
	if a == nil {
		return nil
	}
	out := make(Answers, len(a))
	for k, v := range a {
		out[k] = v
	}
	return out
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}
