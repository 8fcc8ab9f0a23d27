package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"loopmodel/internal/config"
)

// question is one prompt of the add command. An empty answer takes def.
type question struct {
	key    string
	prompt string
	def    string
	float  bool
}

var profileQuestions = []question{
	{key: "cache_kbytes", prompt: "Cache capacity (KiB)", def: "32", float: true},
	{key: "double", prompt: "Bytes per double", def: "8"},
	{key: "float", prompt: "Bytes per float", def: "4"},
	{key: "int", prompt: "Bytes per int", def: "4"},
	{key: config.ClassLoad, prompt: "Load traffic scale factor", def: "1", float: true},
	{key: config.ClassStore, prompt: "Store traffic scale factor", def: "1", float: true},
	{key: config.ClassLoadStore, prompt: "Load-store traffic scale factor", def: "1", float: true},
}

// check reports why s is not an acceptable answer to q.
func (q question) check(s string) error {
	if s == "" {
		return nil
	}
	if q.float {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil || v < 0 {
			return fmt.Errorf("%s: want a non-negative number", q.prompt)
		}
		return nil
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil || v <= 0 {
		return fmt.Errorf("%s: want a positive integer", q.prompt)
	}
	return nil
}

// profileFromAnswers builds a profile from prompt answers keyed by
// question.key. Missing or empty answers take the question default.
func profileFromAnswers(answers map[string]string) (*config.Config, error) {
	get := func(q question) (string, error) {
		s := strings.TrimSpace(answers[q.key])
		if err := q.check(s); err != nil {
			return "", err
		}
		if s == "" {
			s = q.def
		}
		return s, nil
	}
	cfg := config.Default()
	for _, q := range profileQuestions {
		s, err := get(q)
		if err != nil {
			return nil, err
		}
		switch q.key {
		case "cache_kbytes":
			cfg.Machine.CacheKBytes, _ = strconv.ParseFloat(s, 64)
		case config.ClassLoad, config.ClassStore, config.ClassLoadStore:
			cfg.Machine.Scale[q.key], _ = strconv.ParseFloat(s, 64)
		default:
			cfg.Machine.Types[q.key], _ = strconv.ParseInt(s, 10, 64)
		}
	}
	return cfg, nil
}

// ---------------------------------------------------------------------------
// TUI
// ---------------------------------------------------------------------------

// promptModel is a bubbletea model that asks one question at a time and
// refuses to advance past an invalid answer.
type promptModel struct {
	questions []question
	idx       int
	inputs    []textinput.Model
	errMsg    string
	done      bool
}

func newPromptModel(questions []question) promptModel {
	inputs := make([]textinput.Model, len(questions))
	for i, q := range questions {
		ti := textinput.New()
		ti.Placeholder = q.def
		ti.CharLimit = 32
		inputs[i] = ti
	}
	m := promptModel{
		questions: questions,
		inputs:    inputs,
	}
	if len(inputs) > 0 {
		m.inputs[0].Focus()
	}
	return m
}

func (m promptModel) Init() tea.Cmd {
	return textinput.Blink
}

func (m promptModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			return m, tea.Quit
		case tea.KeyEnter:
			if err := m.questions[m.idx].check(strings.TrimSpace(m.inputs[m.idx].Value())); err != nil {
				m.errMsg = err.Error()
				return m, nil
			}
			m.errMsg = ""
			if m.idx < len(m.inputs)-1 {
				m.inputs[m.idx].Blur()
				m.idx++
				m.inputs[m.idx].Focus()
				return m, textinput.Blink
			}
			m.done = true
			return m, tea.Quit
		}
	}
	var cmd tea.Cmd
	m.inputs[m.idx], cmd = m.inputs[m.idx].Update(msg)
	return m, cmd
}

func (m promptModel) View() string {
	if m.done || len(m.questions) == 0 {
		return ""
	}
	q := m.questions[m.idx]
	s := fmt.Sprintf("%s [%s]: %s\n", q.prompt, q.def, m.inputs[m.idx].View())
	if m.errMsg != "" {
		s += m.errMsg + "\n"
	}
	return s
}

// answers returns the entered values keyed by question.key.
func (m promptModel) answers() map[string]string {
	out := make(map[string]string, len(m.questions))
	for i, q := range m.questions {
		out[q.key] = m.inputs[i].Value()
	}
	return out
}

// promptQuestions runs the TUI and returns answers keyed by question.key.
func promptQuestions(questions []question) (map[string]string, error) {
	if len(questions) == 0 {
		return map[string]string{}, nil
	}
	p := tea.NewProgram(newPromptModel(questions))
	result, err := p.Run()
	if err != nil {
		return nil, err
	}
	final, ok := result.(promptModel)
	if !ok || !final.done {
		return nil, fmt.Errorf("prompt cancelled")
	}
	return final.answers(), nil
}
