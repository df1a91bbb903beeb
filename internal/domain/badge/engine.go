package badge

// ══════════════════════════════════════════════════════════════════════════════
// BADGE ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Outcome - результат оценки одного значка.
type Outcome struct {
	// Definition - оценённый значок.
	Definition Definition

	// Previous - сохранённый прогресс до оценки.
	Previous int

	// Progress - прогресс после оценки (никогда не меньше Previous).
	Progress int

	// Stored - строка прогресса уже существует в хранилище.
	Stored bool

	// Reached - порог достигнут, значок нужно выдать (insert-if-absent).
	Reached bool
}

// ProgressChanged - изменился ли прогресс относительно сохранённого.
func (o Outcome) ProgressChanged() bool {
	return o.Progress != o.Previous
}

// NeedsSave - нужно ли записывать прогресс. Строка создаётся при первой
// оценке, даже с нулевым прогрессом.
func (o Outcome) NeedsSave() bool {
	return !o.Stored || o.ProgressChanged()
}

// Evaluation - результат прохода движка по каталогу.
type Evaluation struct {
	// Outcomes - значки, которые были оценены.
	Outcomes []Outcome

	// Skipped - уже полученные значки (не оценивались).
	Skipped int

	// ConfigErrors - значки с некорректными критериями. Это проблема данных,
	// а не действия пользователя; остальные значки оцениваются как обычно.
	ConfigErrors []error
}

// Reached возвращает значки, чей порог достигнут.
func (e Evaluation) Reached() []Outcome {
	var out []Outcome
	for _, o := range e.Outcomes {
		if o.Reached {
			out = append(out, o)
		}
	}
	return out
}

// Engine вычисляет прогресс по значкам. Состояния не хранит, ввода-вывода не делает.
type Engine struct{}

// NewEngine создаёт движок значков.
func NewEngine() *Engine {
	return &Engine{}
}

// Evaluate оценивает все не полученные значки по снимку.
// earned - уже полученные значки, progress - сохранённый прогресс по ID значка.
func (e *Engine) Evaluate(
	defs []Definition,
	earned map[string]bool,
	progress map[string]int,
	snapshot ActivitySnapshot,
) Evaluation {
	var ev Evaluation

	for _, def := range defs {
		if earned[def.ID] {
			ev.Skipped++
			continue
		}

		if err := def.Validate(); err != nil {
			ev.ConfigErrors = append(ev.ConfigErrors, err)
			continue
		}

		value, err := def.Criterion.Evaluate(snapshot)
		if err != nil {
			ev.ConfigErrors = append(ev.ConfigErrors, err)
			continue
		}

		previous, stored := progress[def.ID]
		if value < previous {
			value = previous
		}

		ev.Outcomes = append(ev.Outcomes, Outcome{
			Definition: def,
			Previous:   previous,
			Progress:   value,
			Stored:     stored,
			Reached:    value >= def.Threshold,
		})
	}

	return ev
}
