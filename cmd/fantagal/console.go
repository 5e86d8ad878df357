package main

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/tonetxo/fantagal-go"
	"github.com/tonetxo/fantagal-go/internal/midictl"
	"github.com/tonetxo/fantagal-go/internal/mixer"
	"github.com/tonetxo/fantagal-go/internal/synth"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e0b050"))
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("#555"))
	activeStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#fff"))
	selectedStyle = lipgloss.NewStyle().Reverse(true)
	playheadStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#e0b050")).Bold(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888"))
	panelStyle    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("#444")).Padding(0, 1)
)

const (
	refreshEvery = 50 * time.Millisecond
	noteLength   = 300 * time.Millisecond
	spectrumBars = 32
)

type tickMsg time.Time

type releaseMsg synth.NoteHandle

func tick() tea.Cmd {
	return tea.Tick(refreshEvery, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func release(h synth.NoteHandle) tea.Cmd {
	return tea.Tick(noteLength, func(time.Time) tea.Msg { return releaseMsg(h) })
}

// console is the terminal front panel. Terminals report no key releases, so
// every console note is held for noteLength.
type console struct {
	p        *fantagal.Platform
	an       *analyzer
	param    int
	octave   int
	seq      []float32
	bands    []float64
	peak     float32
	status   string
	quitting bool
}

func newConsole(p *fantagal.Platform, an *analyzer) console {
	return console{
		p:      p,
		an:     an,
		octave: 4,
		seq:    make([]float32, mixer.SequencerDataLen),
		status: "ready",
	}
}

func (c console) Init() tea.Cmd { return tick() }

func (c console) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return c.key(msg.String())

	case tickMsg:
		c.p.SequencerData(c.seq)
		c.bands = c.an.Bands(spectrumBars)
		c.peak = c.an.Peak()
		return c, tick()

	case releaseMsg:
		c.p.StopNote(synth.NoteHandle(msg))
	}
	return c, nil
}

func (c console) key(k string) (tea.Model, tea.Cmd) {
	switch k {
	case "q", "ctrl+c", "esc":
		c.quitting = true
		return c, tea.Quit

	case "1", "2", "3", "4", "5":
		s := mixer.Slot(k[0] - '1')
		on := !c.p.IsEngineEnabled(s)
		c.p.SetEngineEnabled(s, on)
		c.status = fmt.Sprintf("%s %s", s, onOff(on))

	case "tab":
		s := (c.p.SelectedEngine() + 1) % mixer.SlotCount
		c.p.SetSelectedEngine(s)
		c.status = "selected " + s.String()

	case "left":
		c.param = (c.param + len(paramNames) - 1) % len(paramNames)
	case "right":
		c.param = (c.param + 1) % len(paramNames)
	case "up", "down":
		delta := float32(0.05)
		if k == "down" {
			delta = -delta
		}
		s := c.p.SelectedEngine()
		params := c.p.EngineParameters(s)
		c.p.UpdateEngineParameters(s, withParam(params, c.param, paramAt(params, c.param)+delta))

	case "z":
		c.octave = max(0, c.octave-1)
	case "x":
		c.octave = min(8, c.octave+1)

	case " ":
		playing := c.seq[2] == 0
		c.p.SetSequencerPlaying(playing)
		c.status = "sequencer " + onOff(playing)
	case "r":
		mode := (synth.RhythmMode(c.seq[1]) + 1) % (synth.RhythmRibeirada + 1)
		c.p.SetRhythmMode(mode)
		c.status = "rhythm " + rhythmName(mode)
	case "n":
		c.p.GeneratePattern()
		c.status = "new pattern"

	default:
		if n, ok := keyNote(k, c.octave); ok {
			h := c.p.PlayNote(midictl.KeyToFreq(n), 0.8)
			if h == synth.NoNote {
				c.status = "no engine accepted the note"
				return c, nil
			}
			return c, release(h)
		}
	}
	return c, nil
}

func (c console) View() string {
	if c.quitting {
		return ""
	}
	var b strings.Builder
	b.WriteString(titleStyle.Render("FANTAGAL") + "  " +
		statusStyle.Render(fmt.Sprintf("%s %d Hz / %d  restarts %d",
			c.p.BackendName(), c.p.SampleRate(), c.p.FramesPerBuffer(), c.p.Restarts())))
	b.WriteString("\n\n")
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top,
		panelStyle.Render(c.engines()),
		panelStyle.Render(c.params())))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(c.sequencer()))
	b.WriteString("\n")
	b.WriteString(panelStyle.Render(c.meters()))
	b.WriteString("\n")
	b.WriteString(statusStyle.Render(c.status))
	b.WriteString("\n")
	b.WriteString(dimStyle.Render("1-5 toggle  tab select  ←→ param  ↑↓ adjust  a-k play  z/x octave  space seq  r rhythm  n pattern  q quit"))
	return b.String()
}

func (c console) engines() string {
	var lines []string
	sel := c.p.SelectedEngine()
	for i := 0; i < mixer.SlotCount; i++ {
		s := mixer.Slot(i)
		mark := "○"
		style := dimStyle
		if c.p.IsEngineEnabled(s) {
			mark = "●"
			style = activeStyle
		}
		line := fmt.Sprintf("%d %s %-10s", i+1, mark, s)
		if s == sel {
			line = selectedStyle.Render(line)
		} else {
			line = style.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (c console) params() string {
	params := c.p.EngineParameters(c.p.SelectedEngine())
	var lines []string
	for i, name := range paramNames {
		v := paramAt(params, i)
		line := fmt.Sprintf("%-10s %s %.2f", name, bar(float64(v), 20), v)
		if i == c.param {
			line = selectedStyle.Render(line)
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (c console) sequencer() string {
	cur := int(c.seq[0])
	playing := c.seq[2] != 0
	var cells []string
	for i := 0; i < synth.NumSteps; i++ {
		ch, style := "·", dimStyle
		if c.seq[3+synth.NumSteps+i] != 0 {
			ch, style = "■", activeStyle
		}
		if playing && i == cur {
			style = playheadStyle
		}
		cells = append(cells, style.Render(ch))
	}
	return fmt.Sprintf("%s  %-9s fog %.2f  fm %3.0f\n%s",
		strings.Join(cells, " "),
		rhythmName(synth.RhythmMode(c.seq[1])),
		c.seq[35], c.seq[37],
		statusStyle.Render("sequencer "+onOff(playing)))
}

func (c console) meters() string {
	const rows = 4
	var b strings.Builder
	levels := []rune(" ▁▂▃▄▅▆▇█")
	for r := rows - 1; r >= 0; r-- {
		for _, v := range c.bands {
			x := v*rows - float64(r)
			idx := int(x * float64(len(levels)-1))
			idx = max(0, min(len(levels)-1, idx))
			b.WriteRune(levels[idx])
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "peak %s  vocoder %s", bar(float64(c.peak), 16), bar(float64(c.p.VocoderLevel()), 16))
	return b.String()
}

func bar(v float64, width int) string {
	n := int(v*float64(width) + 0.5)
	n = max(0, min(width, n))
	return strings.Repeat("█", n) + dimStyle.Render(strings.Repeat("░", width-n))
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func rhythmName(m synth.RhythmMode) string {
	switch m {
	case synth.RhythmMuineira:
		return "muiñeira"
	case synth.RhythmRibeirada:
		return "ribeirada"
	default:
		return "libre"
	}
}
