package rewards

import (
	"context"
	"fmt"

	"github.com/julianstephens/horizon/internal/cli"
	"github.com/julianstephens/horizon/internal/constants"
)

type ProgressCmd struct{}

func (c *ProgressCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	p, err := ctx.Service.Progress(appCtx)
	if err != nil {
		return err
	}

	lastActive := "never"
	if p.LastActiveDay != nil {
		lastActive = p.LastActiveDay.String()
	}

	body := fmt.Sprintf("%s\nTotal XP:       %d\nDay streak:     %s\nLongest streak: %s\nLast active:    %s",
		cli.FormatLevel(p),
		p.TotalXP,
		cli.Pluralize(p.CurrentStreakDays, "day"),
		cli.Pluralize(p.LongestStreakDays, "day"),
		lastActive,
	)
	fmt.Println(cli.TitleStyle.Render("Progress"))
	fmt.Println(cli.BoxStyle.Render(body))
	return nil
}

type AchievementsCmd struct{}

func (c *AchievementsCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	achievements, err := ctx.Service.Achievements(appCtx)
	if err != nil {
		return err
	}

	unlocked := 0
	for _, a := range achievements {
		if !a.Unlocked() {
			fmt.Printf("  %s %-14s %s\n", cli.MutedStyle.Render("○"), cli.MutedStyle.Render(a.Title), cli.MutedStyle.Render(a.Description))
			continue
		}
		unlocked++
		fmt.Printf("  %s %-14s %s  %s\n",
			cli.SuccessStyle.Render("★"),
			a.Title,
			a.Description,
			cli.MutedStyle.Render(a.UnlockedAt.In(ctx.Clock.Now().Location()).Format(constants.DateFormat)))
	}
	fmt.Printf("\n%d/%d unlocked\n", unlocked, len(achievements))
	return nil
}

type StatsCmd struct{}

func (c *StatsCmd) Run(ctx *cli.Context) error {
	appCtx := context.Background()
	if err := ctx.Open(appCtx); err != nil {
		return err
	}

	stats, err := ctx.Service.Statistics(appCtx)
	if err != nil {
		return err
	}

	fmt.Println(cli.TitleStyle.Render("Statistics"))
	fmt.Printf("Active habits:      %d\n", stats.ActiveHabits)
	fmt.Printf("Total completions:  %d\n", stats.TotalCompletions)
	fmt.Printf("Habit streak days:  %d\n", stats.TotalStreakDays)
	fmt.Printf("Level:              %d (%d XP)\n", stats.Level, stats.TotalXP)
	fmt.Printf("Day streak:         %s (best %d)\n", cli.Pluralize(stats.CurrentStreakDays, "day"), stats.LongestStreakDays)
	fmt.Printf("Achievements:       %d/%d\n", stats.UnlockedAchievements, stats.TotalAchievements)
	return nil
}
