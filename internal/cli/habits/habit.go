package habits

import (
	"context"
	"fmt"
	"strings"

	"github.com/julianstephens/horizon/internal/cli"
	"github.com/julianstephens/horizon/internal/constants"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/models"
	"github.com/julianstephens/horizon/internal/progress"
)

type HabitCmd struct {
	Add       HabitAddCmd       `cmd:"" help:"Add a new habit."`
	Edit      HabitEditCmd      `cmd:"" help:"Edit an existing habit."`
	List      HabitListCmd      `cmd:"" help:"List habits with their streaks."`
	Show      HabitShowCmd      `cmd:"" help:"Show a habit and its recent history."`
	Toggle    HabitToggleCmd    `cmd:"" aliases:"done" help:"Toggle a habit's completion for a day."`
	Archive   HabitArchiveCmd   `cmd:"" help:"Archive a habit."`
	Unarchive HabitUnarchiveCmd `cmd:"" help:"Restore an archived habit."`
}

type HabitAddCmd struct {
	Name        string `arg:"" optional:"" help:"Habit name."`
	Description string `help:"Optional description."`
	Target      int    `help:"Target completions per week (1-7)." default:"7"`
	Days        string `help:"Active days: daily, weekdays, weekends or a list like mon,wed,fri." default:"daily"`
	Color       string `help:"Hex color." default:"#6366F1"`
	Interactive bool   `short:"i" help:"Fill in the habit with an interactive form."`
}

func (c *HabitAddCmd) input() (models.HabitInput, error) {
	days, err := models.ParseWeekdays(c.Days)
	if err != nil {
		return models.HabitInput{}, err
	}
	return models.HabitInput{
		Name:          c.Name,
		Description:   c.Description,
		TargetPerWeek: c.Target,
		ActiveDays:    days,
		Color:         c.Color,
	}, nil
}

func (c *HabitAddCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	in, err := c.input()
	if err != nil {
		return err
	}
	if c.Interactive {
		fm := newHabitFormModel(in)
		if err := newHabitForm(fm).Run(); err != nil {
			return err
		}
		if in, err = fm.Input(); err != nil {
			return err
		}
	} else if strings.TrimSpace(c.Name) == "" {
		return errors.InvalidArgument("habit name is required (or use --interactive)")
	}

	habit, err := ctx.Service.CreateHabit(appCtx, in)
	if err != nil {
		return err
	}

	fmt.Printf("%s Added habit: %s (%s, %d/week)\n", Swatch(habit), habit.Name, habit.ActiveDays, habit.TargetPerWeek)
	return nil
}

type HabitEditCmd struct {
	Habit       string  `arg:"" help:"Habit name or id."`
	Name        *string `help:"New name."`
	Description *string `help:"New description."`
	Target      *int    `help:"New target completions per week (1-7)."`
	Days        *string `help:"New active days."`
	Color       *string `help:"New hex color."`
	Interactive bool    `short:"i" help:"Edit the habit with an interactive form."`
}

func (c *HabitEditCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	habit, err := ctx.Service.FindHabit(appCtx, c.Habit)
	if err != nil {
		return err
	}

	in := habit.Input()
	if c.Name != nil {
		in.Name = *c.Name
	}
	if c.Description != nil {
		in.Description = *c.Description
	}
	if c.Target != nil {
		in.TargetPerWeek = *c.Target
	}
	if c.Days != nil {
		if in.ActiveDays, err = models.ParseWeekdays(*c.Days); err != nil {
			return err
		}
	}
	if c.Color != nil {
		in.Color = *c.Color
	}
	if c.Interactive {
		fm := newHabitFormModel(in)
		if err := newHabitForm(fm).Run(); err != nil {
			return err
		}
		if in, err = fm.Input(); err != nil {
			return err
		}
	}

	updated, err := ctx.Service.UpdateHabit(appCtx, habit.ID, in)
	if err != nil {
		return err
	}

	fmt.Printf("Updated habit: %s\n", updated.Name)
	return nil
}

type HabitListCmd struct {
	Archived bool `help:"Include archived habits."`
}

func (c *HabitListCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	list, err := ctx.Service.ListHabitProgress(appCtx, c.Archived)
	if err != nil {
		return err
	}

	if len(list) == 0 {
		fmt.Println("No habits found.")
		return nil
	}

	today := ctx.Service.Today()
	fmt.Println(cli.TitleStyle.Render(fmt.Sprintf("Habits for %s", today)))
	fmt.Println()
	for _, hp := range list {
		status := "[ ]"
		if hp.CompletedToday {
			status = cli.SuccessStyle.Render("[x]")
		} else if !hp.Habit.IsActiveOn(today) {
			status = cli.MutedStyle.Render("[-]")
		}
		name := hp.Habit.Name
		if hp.Habit.Archived {
			name += cli.MutedStyle.Render(" [ARCHIVED]")
		}
		fmt.Printf("%s %s %-24s streak %-3d best %-3d week %d/%d\n",
			status, Swatch(hp.Habit), name, hp.CurrentStreak, hp.LongestStreak, hp.CompletedThisWeek, hp.Habit.TargetPerWeek)
	}
	return nil
}

type HabitShowCmd struct {
	Habit string `arg:"" help:"Habit name or id."`
	Days  int    `help:"Number of days of history to show." default:"28"`
}

func (c *HabitShowCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	if c.Days < 1 {
		return errors.InvalidArgument("--days must be positive")
	}
	habit, err := ctx.Service.FindHabit(appCtx, c.Habit)
	if err != nil {
		return err
	}
	hp, err := ctx.Service.HabitProgress(appCtx, habit.ID)
	if err != nil {
		return err
	}
	today := ctx.Service.Today()

	fmt.Printf("%s %s\n", Swatch(habit), cli.TitleStyle.Render(habit.Name))
	if habit.Description != "" {
		fmt.Println(habit.Description)
	}
	fmt.Printf("ID:             %s\n", habit.ID)
	fmt.Printf("Active days:    %s\n", habit.ActiveDays)
	fmt.Printf("Target:         %d/week (%d this week)\n", habit.TargetPerWeek, hp.CompletedThisWeek)
	fmt.Printf("Current streak: %s\n", cli.Pluralize(hp.CurrentStreak, "day"))
	fmt.Printf("Longest streak: %s\n", cli.Pluralize(hp.LongestStreak, "day"))
	fmt.Printf("Completions:    %d\n", len(hp.Days))
	if habit.Archived {
		fmt.Println(cli.WarningStyle.Render("This habit is archived."))
	}

	start := today - models.Day(c.Days-1)
	fmt.Printf("\n%s .. %s\n", start, today)
	fmt.Printf("[%s]\n", cli.HistoryGrid(habit, hp.Days, today, c.Days))
	fmt.Println(cli.MutedStyle.Render("# done  . missed  (blank) not scheduled"))
	return nil
}

type HabitToggleCmd struct {
	Habit string `arg:"" help:"Habit name or id."`
	Date  string `help:"Date in YYYY-MM-DD format (default: today)." default:""`
}

func (c *HabitToggleCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	habit, err := ctx.Service.FindHabit(appCtx, c.Habit)
	if err != nil {
		return err
	}

	day := ctx.Service.Today()
	if c.Date != "" {
		if day, err = models.ParseDay(c.Date); err != nil {
			return err
		}
	}

	result, err := ctx.Service.ToggleCompletion(appCtx, habit.ID, day)
	if err != nil {
		return err
	}

	fmt.Print(FormatToggle(habit, result))
	return nil
}

// FormatToggle renders the outcome of a toggle.
func FormatToggle(habit models.Habit, result progress.ToggleResult) string {
	var b strings.Builder
	if !result.Completed {
		fmt.Fprintf(&b, "Unmarked %s for %s\n", habit.Name, result.Day)
		return b.String()
	}

	fmt.Fprintf(&b, "%s Marked %s for %s", cli.SuccessStyle.Render("✓"), habit.Name, result.Day)
	if result.XPAwarded > 0 {
		fmt.Fprintf(&b, " (+%d XP)", result.XPAwarded)
	}
	b.WriteString("\n")
	if result.XPAwarded > 0 {
		fmt.Fprintf(&b, "  %s  streak %s\n", cli.FormatLevel(result.Progress), cli.Pluralize(result.Progress.CurrentStreakDays, "day"))
	}
	if result.LevelsGained > 0 {
		fmt.Fprintf(&b, "  %s\n", cli.TitleStyle.Render(fmt.Sprintf("Level up! You reached level %d", result.Progress.Level)))
	}
	for _, a := range result.Unlocked {
		fmt.Fprintf(&b, "  %s %s: %s\n", cli.TitleStyle.Render("Achievement unlocked!"), a.Title, a.Description)
	}
	return b.String()
}

type HabitArchiveCmd struct {
	Habit string `arg:"" help:"Habit name or id."`
}

func (c *HabitArchiveCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	habit, err := ctx.Service.FindHabit(appCtx, c.Habit)
	if err != nil {
		return err
	}
	if habit.Archived {
		return errors.InvalidArgument("habit %q is already archived", habit.Name)
	}
	if err := ctx.Service.ArchiveHabit(appCtx, habit.ID); err != nil {
		return err
	}

	fmt.Printf("Archived habit: %s\n", habit.Name)
	return nil
}

type HabitUnarchiveCmd struct {
	Habit string `arg:"" help:"Habit name or id."`
}

func (c *HabitUnarchiveCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	habit, err := ctx.Service.FindHabit(appCtx, c.Habit)
	if err != nil {
		return err
	}
	if !habit.Archived {
		return errors.InvalidArgument("habit %q is not archived", habit.Name)
	}
	if err := ctx.Service.UnarchiveHabit(appCtx, habit.ID); err != nil {
		return err
	}

	fmt.Printf("Restored habit: %s\n", habit.Name)
	return nil
}

// Swatch renders the habit's color marker.
func Swatch(h models.Habit) string {
	color := h.Color
	if color == "" {
		color = constants.DefaultHabitColor
	}
	return cli.Swatch(color)
}
