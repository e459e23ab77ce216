package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss/v2"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dojoai/dojo/internal/agent"
	"github.com/dojoai/dojo/internal/ast"
	"github.com/dojoai/dojo/internal/binder"
	"github.com/dojoai/dojo/internal/engine"
	"github.com/dojoai/dojo/internal/execcontext"
	"github.com/dojoai/dojo/internal/style"
	"github.com/dojoai/dojo/internal/tools"
	"github.com/dojoai/dojo/pkg/events"
)

// chatCmd represents the chat command
var chatCmd = &cobra.Command{
	Use:   "chat [module.yaml]",
	Short: "Run a module in an interactive terminal session",
	Long: `Run a module with a live transcript. The agent plays its side as
usual; whenever the session asks for user input you type the reply
yourself instead of the module providing a scripted line.

Keys:
  enter    send input (only read while the session awaits it)
  ctrl+e   toggle inject mode: type "tool.event {json-args}" to fire a
           tool's trigger_event action mid-run
  ctrl+p   pause or resume the session between turns
  ctrl+c   cancel the session and quit

Examples:
  dojo chat refund.yaml
  dojo chat refund.yaml --agent gpt4 -v region=eu`,
	Args: cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		runCtx := execcontext.RunContext{
			Context: cmd.Context(),
			StdOut:  cmd.OutOrStdout(),
			StdErr:  cmd.OutOrStderr(),
		}

		if err := runChat(runCtx, args[0]); err != nil {
			os.Exit(1)
		}
	},
}

var (
	chatAgent     string
	chatAgentDirs []string
	chatToolDirs  []string
	chatVars      []string
)

func init() {
	rootCmd.AddCommand(chatCmd)

	chatCmd.Flags().StringVarP(&chatAgent, "agent", "a", "", "agent ID to run the module with")
	chatCmd.Flags().StringSliceVar(&chatAgentDirs, "agent-dir", nil, "additional directories to search for agent specs")
	chatCmd.Flags().StringSliceVar(&chatToolDirs, "tool-dir", nil, "additional directories to search for tool specs")
	chatCmd.Flags().StringArrayVarP(&chatVars, "var", "v", nil, "variable override (key=value, values parsed as JSON)")
}

func runChat(runCtx execcontext.RunContext, moduleFile string) error {
	vars, err := collectVariables(chatVars)
	if err != nil {
		style.Error(runCtx.StdErr, err.Error())
		return err
	}

	module, err := loadModule(runCtx, moduleFile)
	if err != nil {
		return err
	}

	bound := binder.New().Bind(module, vars)

	registry, err := engine.DefaultToolRegistry(append(tools.DefaultCatalogDirs(), chatToolDirs...)...)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to load tool catalog: %v", err))
		return err
	}

	loader, err := agent.LoadSpecs(append(agent.DefaultDirs(), chatAgentDirs...)...)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to load agent specs: %v", err))
		return err
	}

	ag, err := loader.ForModule(chatAgent, bound, defaultProviders())
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to build agent: %v", err))
		return err
	}

	session, err := engine.NewSession(bound, ag, registry)
	if err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to create session: %v", err))
		return err
	}

	ctx, cancel := context.WithCancel(runCtx.Context)
	defer cancel()

	if err := session.Start(ctx); err != nil {
		style.Error(runCtx.StdErr, fmt.Sprintf("Failed to start session: %v", err))
		return err
	}

	program := tea.NewProgram(newChatModel(session, bound), tea.WithAltScreen(), tea.WithContext(ctx))
	if _, err := program.Run(); err != nil {
		session.Cancel()
		style.Error(runCtx.StdErr, fmt.Sprintf("Chat session failed: %v", err))
		return err
	}
	session.Cancel()

	// The alt screen is gone at this point, so replay the transcript
	// where it survives in scrollback.
	if result, ok := session.Result(); ok {
		switch viper.GetString("output") {
		case "json":
			style.PrintJSON(runCtx.StdOut, result)
		case "yaml":
			style.PrintYAML(runCtx.StdOut, result)
		default:
			if !viper.GetBool("quiet") {
				renderTranscript(runCtx.StdOut, result.Events)
				renderEvaluation(runCtx.StdOut, bound, result.Evaluation)
			}
		}
	}

	return nil
}

type sessionEventMsg struct {
	event events.Event
	ok    bool
}

type injectResultMsg struct {
	tool string
	kind string
	data interface{}
	err  error
}

// waitForEvent reads one session event; Update re-issues it after each
// delivery so the stream keeps flowing through the program.
func waitForEvent(stream <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		event, ok := <-stream
		return sessionEventMsg{event: event, ok: ok}
	}
}

func injectEvent(session *engine.Session, tool, kind string, args map[string]interface{}) tea.Cmd {
	return func() tea.Msg {
		data, err := session.InjectEvent(tool, kind, args)
		return injectResultMsg{tool: tool, kind: kind, data: data, err: err}
	}
}

type chatModel struct {
	session  *engine.Session
	module   *ast.Module
	stream   <-chan events.Event
	viewport viewport.Model
	textarea textarea.Model
	lines    []string
	awaiting bool
	inject   bool
	paused   bool
	done     bool
}

func newChatModel(session *engine.Session, module *ast.Module) chatModel {
	ta := textarea.New()
	ta.Placeholder = "Type a reply..."
	ta.Prompt = "> "
	ta.CharLimit = 2000
	ta.SetHeight(2)
	ta.ShowLineNumbers = false
	ta.KeyMap.InsertNewline.SetEnabled(false)
	ta.Focus()

	vp := viewport.New(80, 20)
	vp.SetContent(style.MutedStyle.Render("Starting session..."))

	return chatModel{
		session:  session,
		module:   module,
		stream:   session.Events(),
		viewport: vp,
		textarea: ta,
	}
}

func (m chatModel) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, waitForEvent(m.stream))
}

func (m chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.textarea.SetWidth(msg.Width)
		m.viewport.Width = msg.Width
		m.viewport.Height = msg.Height - m.textarea.Height() - 3
		m.syncViewport()
		return m, nil

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			m.session.Cancel()
			return m, tea.Quit
		case tea.KeyEsc:
			if m.inject {
				m.inject = false
				return m, nil
			}
			m.session.Cancel()
			return m, tea.Quit
		case tea.KeyCtrlE:
			m.inject = !m.inject
			return m, nil
		case tea.KeyCtrlP:
			m.togglePause()
			return m, nil
		case tea.KeyEnter:
			return m.submit()
		}

	case sessionEventMsg:
		if !msg.ok {
			m.done = true
			return m, nil
		}
		m.handleEvent(msg.event)
		return m, waitForEvent(m.stream)

	case injectResultMsg:
		if msg.err != nil {
			m.appendLine(style.ErrorStyle.Render(fmt.Sprintf("inject %s.%s: %v", msg.tool, msg.kind, msg.err)))
		} else {
			line := fmt.Sprintf("%s injected %s.%s", style.ToolLabelStyle.Render("event:"), msg.tool, msg.kind)
			if msg.data != nil {
				if data, err := json.Marshal(msg.data); err == nil {
					line += " " + style.MutedStyle.Render(string(data))
				}
			}
			m.appendLine(line)
		}
		return m, nil
	}

	var taCmd, vpCmd tea.Cmd
	m.textarea, taCmd = m.textarea.Update(msg)
	m.viewport, vpCmd = m.viewport.Update(msg)
	return m, tea.Batch(taCmd, vpCmd)
}

func (m chatModel) View() string {
	return fmt.Sprintf("%s\n%s\n%s", m.viewport.View(), m.statusLine(), m.textarea.View())
}

func (m *chatModel) submit() (tea.Model, tea.Cmd) {
	value := strings.TrimSpace(m.textarea.Value())
	if value == "" {
		return *m, nil
	}

	if m.inject {
		tool, kind, args, err := parseInjection(value)
		if err != nil {
			m.appendLine(style.ErrorStyle.Render(err.Error()))
			return *m, nil
		}
		m.textarea.Reset()
		return *m, injectEvent(m.session, tool, kind, args)
	}

	if !m.awaiting {
		m.appendLine(style.MutedStyle.Render("(input is only read when the session asks for it)"))
		return *m, nil
	}

	if err := m.session.ProvideInput(value); err != nil {
		m.appendLine(style.ErrorStyle.Render(err.Error()))
		return *m, nil
	}
	m.awaiting = false
	m.textarea.Reset()
	return *m, nil
}

func (m *chatModel) togglePause() {
	if m.paused {
		if err := m.session.Resume(); err != nil {
			m.appendLine(style.ErrorStyle.Render(err.Error()))
			return
		}
		m.paused = false
		m.appendLine(style.MutedStyle.Render("session resumed"))
		return
	}
	if err := m.session.Pause(); err != nil {
		m.appendLine(style.ErrorStyle.Render(err.Error()))
		return
	}
	m.paused = true
	m.appendLine(style.MutedStyle.Render("session pausing after the current turn"))
}

func (m *chatModel) handleEvent(e events.Event) {
	switch e.Type {
	case events.TypeAwaitingInput:
		m.awaiting = true
		m.appendEvent(e)
	case events.TypeError:
		m.done = true
		m.appendLine(style.ErrorStyle.Render("error: " + payloadString(e, "message")))
	case events.TypeCompleted:
		m.done = true
		if result, ok := m.session.Result(); ok {
			var buf bytes.Buffer
			renderEvaluation(&buf, m.module, result.Evaluation)
			m.appendLine(buf.String())
		}
	default:
		m.appendEvent(e)
	}
}

func (m *chatModel) appendEvent(e events.Event) {
	var buf bytes.Buffer
	renderTranscript(&buf, []events.Event{e})
	if buf.Len() == 0 {
		return
	}
	m.appendLine(buf.String())
}

func (m *chatModel) appendLine(line string) {
	m.lines = append(m.lines, strings.TrimRight(line, "\n"))
	m.syncViewport()
}

func (m *chatModel) syncViewport() {
	content := strings.Join(m.lines, "\n")
	m.viewport.SetContent(lipgloss.NewStyle().Width(m.viewport.Width).Render(content))
	m.viewport.GotoBottom()
}

func (m chatModel) statusLine() string {
	status := fmt.Sprintf("session: %s", m.session.Status())
	switch {
	case m.done:
		status += "  (esc to exit)"
	case m.paused:
		status += "  (ctrl+p to resume)"
	case m.inject:
		status += "  " + style.AccentStyle.Render("inject: tool.event {json-args}")
	case m.awaiting:
		status += "  " + style.PromptStyle.Render("your turn")
	}
	help := "enter send • ctrl+e inject • ctrl+p pause • ctrl+c quit"
	return style.MutedStyle.Render(status) + "\n" + style.MutedStyle.Render(help)
}

// parseInjection splits "tool.event {json}" into its parts. Args are
// optional and default to an empty map.
func parseInjection(input string) (string, string, map[string]interface{}, error) {
	target, rest, _ := strings.Cut(strings.TrimSpace(input), " ")
	tool, kind, found := strings.Cut(target, ".")
	if !found || tool == "" || kind == "" {
		return "", "", nil, fmt.Errorf("expected tool.event [json-args], got %q", input)
	}

	args := map[string]interface{}{}
	if rest = strings.TrimSpace(rest); rest != "" {
		if err := json.Unmarshal([]byte(rest), &args); err != nil {
			return "", "", nil, fmt.Errorf("parsing inject args: %w", err)
		}
	}
	return tool, kind, args, nil
}
