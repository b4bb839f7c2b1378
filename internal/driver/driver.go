// Package driver implements the Session Driver: the component that owns
// lesson state and ties the Coalescer, Parser, Channel, and Validator
// together into one coherent session lifecycle.
package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/clitutor/controller/internal/coalescer"
	"github.com/clitutor/controller/internal/lesson"
	"github.com/clitutor/controller/internal/parser"
	"github.com/clitutor/controller/internal/progress"
	"github.com/clitutor/controller/internal/sandboxvm"
	"github.com/clitutor/controller/internal/sentinel"
	"github.com/clitutor/controller/internal/validator"
	"github.com/clitutor/controller/internal/xp"
)

// seedDrainNormal and seedDrainGit are how long EnterLesson waits for the
// sandbox seed script to finish running before it is considered settled.
const (
	seedDrainNormal = 800 * time.Millisecond
	seedDrainGit    = 3 * time.Second
	validateDrain   = 600 * time.Millisecond
	bootTimeout     = 120 * time.Second
)

// exerciseRuntime holds the mutable, per-session fields of an Exercise that
// the spec's data model keeps separate from its immutable lesson-file
// configuration.
type exerciseRuntime struct {
	attempts  int
	firstTry  bool
	hintsUsed int
	completed bool
}

// SlashCommands is the set of recognized intercepted input lines, matched
// case-sensitively on the leading word.
var SlashCommands = []string{
	"/help", "/lessons", "/lesson", "/hint", "/skip",
	"/reset", "/status", "/sidebar", "/close", "/back",
}

// InterceptSlashCommand reports whether line is a recognized slash command
// and splits it into command word and remainder argument.
func InterceptSlashCommand(line string) (cmd, arg string, ok bool) {
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "/") {
		return "", "", false
	}
	word, rest, _ := strings.Cut(trimmed, " ")
	for _, known := range SlashCommands {
		if word == known {
			return word, strings.TrimSpace(rest), true
		}
	}
	return "", "", false
}

// Snapshot is a point-in-time summary of session progress, suitable for
// driving a status sidebar.
type Snapshot struct {
	LessonTitle   string
	ExerciseTitle string
	ExerciseIndex int
	ExerciseCount int
	TotalXP       int
	Level         int
	LevelTitle    string
	LevelProgress float64
}

// Driver orchestrates one interactive lesson session end to end.
type Driver struct {
	channel   sandboxvm.Channel
	coalescer *coalescer.Coalescer
	parser    *parser.Parser
	validator *validator.Validator
	progress  *progress.Store
	display   func(string)   // to the terminal widget, outside the Parser
	onStatus  func(Snapshot) // sidebar summary, called on lesson entry, pass, and skip

	log *slog.Logger

	mu         sync.Mutex
	current    *lesson.Data
	index      int
	validating bool
	runtime    map[string]*exerciseRuntime
}

// New constructs a Driver. display is the terminal widget's write function;
// the Driver never calls it directly except as the Parser's initial
// display callback. onStatus, if non-nil, is called with a fresh Snapshot
// whenever lesson progress changes.
func New(channel sandboxvm.Channel, progressStore *progress.Store, display func(string), onStatus func(Snapshot)) *Driver {
	d := &Driver{
		channel:  channel,
		progress: progressStore,
		display:  display,
		onStatus: onStatus,
		log:      slog.Default().With("component", "driver"),
		runtime:  make(map[string]*exerciseRuntime),
	}
	d.validator = validator.New(channel)
	d.parser = parser.New(display, d.handleCommand, d.onReady)
	d.coalescer = coalescer.New(d.parser.ProcessOutput)
	return d
}

// publishStatus builds a Snapshot from current state and hands it to
// onStatus, if one was configured.
func (d *Driver) publishStatus() {
	if d.onStatus == nil {
		return
	}
	d.mu.Lock()
	var snap Snapshot
	if d.current != nil {
		snap.LessonTitle = d.current.Title
		snap.ExerciseCount = len(d.current.Exercises)
		snap.ExerciseIndex = d.index
		if d.index < len(d.current.Exercises) {
			snap.ExerciseTitle = d.current.Exercises[d.index].Title
		}
	}
	d.mu.Unlock()

	total := d.progress.TotalXP()
	info := xp.LevelFor(total)
	snap.TotalXP = total
	snap.Level = info.Level
	snap.LevelTitle = info.Title
	snap.LevelProgress = info.Progress()

	d.onStatus(snap)
}

// onReady is the Parser's ready callback; it exists purely as a named hook
// for future startup bookkeeping and currently just logs.
func (d *Driver) onReady() {
	d.log.Info("shell ready")
}

// Boot starts the VM, waits for its shell to come up, and installs the
// sentinel hook profile.
func (d *Driver) Boot(ctx context.Context) error {
	d.log = d.log.With("session", uuid.New().String())

	ctx, cancel := context.WithTimeout(ctx, bootTimeout)
	defer cancel()

	if err := d.channel.Boot(ctx); err != nil {
		return fmt.Errorf("driver: boot channel: %w", err)
	}

	go d.pumpOutput()

	if err := d.waitReady(ctx); err != nil {
		return fmt.Errorf("driver: wait for shell: %w", err)
	}

	profile := sentinel.GenerateProfile(sentinel.ProfileOptions{})
	if err := d.channel.WriteFile(sentinel.ProfileFileName, []byte(profile)); err != nil {
		return fmt.Errorf("driver: write profile: %w", err)
	}
	if err := d.channel.SendSerial([]byte("source " + sentinel.ProfileFileName + "\n")); err != nil {
		return fmt.Errorf("driver: source profile: %w", err)
	}
	return nil
}

// pumpOutput feeds every byte read from the Channel into the Coalescer,
// which in turn drives the Parser. Runs for the lifetime of the session.
func (d *Driver) pumpOutput() {
	for chunk := range d.channel.Output() {
		d.coalescer.WriteString(string(chunk))
	}
}

// waitReady polls the Parser until it reports ready or ctx is done.
func (d *Driver) waitReady(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		if d.parser.Ready() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// EnterLesson resets the Parser, restores persisted progress for data, and
// seeds the sandbox with every exercise's setup commands. clean requests a
// `rm -rf` of the sandbox root before seeding (lesson switch or /reset).
func (d *Driver) EnterLesson(ctx context.Context, data lesson.Data, clean bool) error {
	d.parser.Reset()

	d.mu.Lock()
	d.current = &data
	d.runtime = make(map[string]*exerciseRuntime, len(data.Exercises))
	d.index = 0
	for _, ex := range data.Exercises {
		rt := &exerciseRuntime{firstTry: true}
		if d.progress.IsExerciseCompleted(data.ID, ex.ID) {
			rt.completed = true
			d.index++
		}
		d.runtime[ex.ID] = rt
	}
	d.mu.Unlock()

	d.publishStatus()
	return d.seed(ctx, data, clean)
}

// seed writes and runs every exercise's sandbox_setup commands, in order,
// from the first exercise onward. Sandbox state is cumulative — a later
// exercise can depend on a `git config` or file an earlier one's
// sandbox_setup created — so a fresh PTYSession (a new process, or a
// /reset's `rm -rf`) needs the full chain replayed even when the student
// already passed the early exercises, not just the commands for the
// exercise they're resuming at.
func (d *Driver) seed(ctx context.Context, data lesson.Data, clean bool) error {
	var lines []string
	if clean {
		lines = append(lines, "cd "+sentinel.SandboxRoot+" && rm -rf "+sentinel.SandboxRoot+"/* "+sentinel.SandboxRoot+"/.[!.]*")
	}
	hasGit := false
	for i := 0; i < len(data.Exercises); i++ {
		for _, cmd := range data.Exercises[i].SandboxSetup {
			lines = append(lines, "cd "+sentinel.SandboxRoot, cmd)
			if strings.Contains(cmd, "git ") {
				hasGit = true
			}
		}
	}
	if len(lines) == 0 {
		return nil
	}

	script := strings.Join(lines, "\n") + "\n"
	const seedPath = ".clitutor_seed.sh"
	if err := d.channel.WriteFile(seedPath, []byte(script)); err != nil {
		return fmt.Errorf("driver: write seed script: %w", err)
	}

	d.parser.IncrementSkipCaptures(1)
	restore := d.parser.SwapDisplayCallback(func(string) {})

	cmdline := fmt.Sprintf("bash %s > /dev/null 2>&1; rm -f %s\n", seedPath, seedPath)
	if err := d.channel.SendSerial([]byte(cmdline)); err != nil {
		d.parser.SwapDisplayCallback(restore)
		return fmt.Errorf("driver: send seed command: %w", err)
	}

	drain := seedDrainNormal
	if hasGit {
		drain = seedDrainGit
	}
	select {
	case <-ctx.Done():
	case <-time.After(drain):
	}

	d.parser.SwapDisplayCallback(restore)
	return nil
}

// handleCommand is wired as the Parser's command callback. It runs the
// guard chain and, if the command passes every guard, validates it on its
// own goroutine since validation suspends (drain waits, filesystem reads).
func (d *Driver) handleCommand(result parser.CommandResult) {
	ex, rt, ok := d.guardChain(result)
	if !ok {
		return
	}
	go d.runValidation(ex, rt, result)
}

// guardChain implements the short-circuit ordering from the spec: each
// check returns (zero, nil, false) to mean "do nothing further".
func (d *Driver) guardChain(result parser.CommandResult) (lesson.Exercise, *exerciseRuntime, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.validating {
		return lesson.Exercise{}, nil, false
	}
	if d.current == nil {
		return lesson.Exercise{}, nil, false
	}
	if d.index >= len(d.current.Exercises) {
		return lesson.Exercise{}, nil, false
	}
	ex := d.current.Exercises[d.index]
	rt := d.runtime[ex.ID]
	if rt.completed {
		return lesson.Exercise{}, nil, false
	}
	if isOutputKind(ex.ValidationType) && strings.TrimSpace(result.Stdout) == "" && result.ReturnCode == 0 {
		return lesson.Exercise{}, nil, false
	}

	rt.attempts++
	d.validating = true
	return ex, rt, true
}

func isOutputKind(kind string) bool {
	switch kind {
	case "output_equals", "output_contains", "output_regex", "exit_code":
		return true
	}
	return false
}

// isFilesystemExtraCommandKind reports whether kind issues extra shell
// commands under the hood (and so needs skipCaptures pre-incremented by 2).
func isFilesystemExtraCommandKind(kind string) bool {
	return kind == "dir_with_file" || kind == "any_file_contains"
}

// runValidation performs the mute/validate/drain/restore sequence and acts
// on the Validator's verdict. Raw serial display stays withheld after the
// restore until the next CMD_START, so late bytes from the validated
// command cannot interleave with the queued system messages.
func (d *Driver) runValidation(ex lesson.Exercise, rt *exerciseRuntime, result parser.CommandResult) {
	restore := d.parser.SwapDisplayCallback(func(string) {})
	if isFilesystemExtraCommandKind(ex.ValidationType) {
		d.parser.IncrementSkipCaptures(2)
	}

	verdict := d.validator.Validate(ex, result)

	time.Sleep(validateDrain)
	d.parser.MuteUntilNextPrompt()
	d.parser.SwapDisplayCallback(restore)

	d.mu.Lock()
	d.validating = false
	d.mu.Unlock()

	if verdict.Passed {
		d.onPass(ex, rt, verdict)
	} else {
		d.onFail(ex, rt, verdict)
	}
}

// onPass marks the exercise complete, awards XP, persists, and advances.
func (d *Driver) onPass(ex lesson.Exercise, rt *exerciseRuntime, verdict validator.Result) {
	d.mu.Lock()
	rt.completed = true
	earned := xp.Award(ex.XP, ex.Difficulty, rt.firstTry, rt.hintsUsed)
	lessonID := d.current.ID
	d.index++
	var next string
	if d.index < len(d.current.Exercises) {
		next = d.current.Exercises[d.index].Title
	}
	atLessonEnd := d.index >= len(d.current.Exercises)
	d.mu.Unlock()

	if err := d.progress.RecordExercise(lessonID, ex.ID, earned, rt.attempts, rt.hintsUsed); err != nil {
		d.log.Warn("failed to persist exercise completion", "lesson", lessonID, "exercise", ex.ID, "error", err)
	}

	d.parser.QueueSystemMessage(fmt.Sprintf("%s (+%d XP)", verdict.Message, earned))
	if atLessonEnd {
		d.parser.QueueSystemMessage("Lesson complete!")
	} else {
		d.parser.QueueSystemMessage("Next: " + next)
	}
	d.publishStatus()
	d.kickPrompt()
}

// onFail records the failed attempt and prompts the student to try again.
func (d *Driver) onFail(ex lesson.Exercise, rt *exerciseRuntime, verdict validator.Result) {
	d.mu.Lock()
	rt.firstTry = false
	d.mu.Unlock()

	d.parser.QueueSystemMessage(verdict.Message)
	d.kickPrompt()
}

// kickPrompt skips the next capture (the newline itself is not a real
// command) and sends a bare newline to produce a fresh visible prompt.
func (d *Driver) kickPrompt() {
	d.parser.IncrementSkipCaptures(1)
	if err := d.channel.SendSerial([]byte("\n")); err != nil {
		d.log.Warn("failed to kick prompt", "error", err)
	}
}

// Hint returns the next unrevealed hint for the current exercise, if any,
// and records that it was used.
func (d *Driver) Hint() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.current == nil || d.index >= len(d.current.Exercises) {
		return "", false
	}
	ex := d.current.Exercises[d.index]
	rt := d.runtime[ex.ID]
	if rt.hintsUsed >= len(ex.Hints) {
		return "", false
	}
	hint := ex.Hints[rt.hintsUsed]
	rt.hintsUsed++
	return hint, true
}

// Skip advances past the current exercise without validating it.
func (d *Driver) Skip() {
	d.mu.Lock()
	if d.current == nil || d.index >= len(d.current.Exercises) {
		d.mu.Unlock()
		return
	}
	d.index++
	d.mu.Unlock()
	d.parser.QueueSystemMessage("Skipped.")
	d.publishStatus()
	d.kickPrompt()
}

// ResetLesson re-seeds the current lesson from scratch, clearing sandbox
// state and discarding in-memory (but not yet-persisted) exercise runtime.
func (d *Driver) ResetLesson(ctx context.Context) error {
	d.mu.Lock()
	data := d.current
	d.mu.Unlock()
	if data == nil {
		return nil
	}
	return d.EnterLesson(ctx, *data, true)
}

// HandleInputLine routes one line of student keyboard input: recognized
// slash commands are intercepted and handled locally, everything else is
// forwarded to the shell verbatim. It returns the current hint text (if the
// line requested one) for the caller to surface in its UI.
func (d *Driver) HandleInputLine(ctx context.Context, line string) (hint string, err error) {
	if cmd, _, ok := InterceptSlashCommand(line); ok {
		switch cmd {
		case "/hint":
			if h, ok := d.Hint(); ok {
				hint = h
			} else {
				d.parser.QueueSystemMessage("No more hints for this exercise.")
			}
		case "/skip":
			d.Skip()
		case "/reset":
			err = d.ResetLesson(ctx)
		default:
			d.parser.QueueSystemMessage("Unrecognized in this view: " + cmd)
		}
		return hint, err
	}
	return "", d.channel.SendSerial([]byte(line + "\n"))
}

// Close tears down the VM channel and coalescer timers.
func (d *Driver) Close() error {
	d.coalescer.Close()
	return d.channel.Close()
}
