package cli

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/apresai/papercast/internal/progress"
	"github.com/apresai/papercast/internal/script"
	"github.com/apresai/papercast/internal/tts"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:           "papercast",
	Short:         "Turn research papers into two-voice Host/Expert podcast episodes",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		flagTUI = true
		return runGenerate(cmd, args)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "papercast %s\n", Version)
	},
}

var generateCmd = &cobra.Command{
	Use:   "generate",
	Short: "Generate an episode from a paper (arXiv, URL, PDF or text file)",
	RunE:  runGenerate,
}

var synthesizeCmd = &cobra.Command{
	Use:   "synthesize <transcript-file>",
	Short: "Generate audio from an existing Host/Expert transcript",
	Args:  cobra.ExactArgs(1),
	RunE:  runSynthesize,
}

var segmentCmd = &cobra.Command{
	Use:   "segment <transcript-file>",
	Short: "Show how a transcript is cleaned, segmented and styled, without synthesis",
	Args:  cobra.ExactArgs(1),
	RunE:  runSegment,
}

var listVoicesCmd = &cobra.Command{
	Use:   "list-voices",
	Short: "List voices and presets for a TTS provider",
	RunE:  runListVoices,
}

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "List locally generated episodes, newest first",
	RunE:  runEpisodes,
}

var (
	flagConfig        string
	flagInput         string
	flagOutputDir     string
	flagLevel         string
	flagHostPersona   string
	flagExpertPersona string
	flagTopics        string
	flagTargetWords   int
	flagPreset        string
	flagHostVoice     string
	flagExpertVoice   string
	flagTTS           string
	flagModel         string
	flagWorkers       int
	flagScriptOnly    bool
	flagVerbose       bool
	flagTUI           bool
	flagAnthropicKey  string
	flagElevenLabsKey string
	flagLimit         int
)

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "", "Path to a papercast YAML config file")
	rootCmd.PersistentFlags().StringVarP(&flagOutputDir, "output-dir", "o", "papercast-output", "Directory for episodes, transcripts and the local episode database")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "Enable detailed logging")

	rootCmd.AddCommand(versionCmd, generateCmd, synthesizeCmd, segmentCmd, listVoicesCmd, episodesCmd)

	generateCmd.Flags().StringVarP(&flagInput, "input", "i", "", "Source paper: arXiv id or URL, web URL, PDF path, or text file path")
	generateCmd.Flags().StringVarP(&flagLevel, "level", "l", "", "Technical level: "+strings.Join(script.LevelNames(), ", "))
	generateCmd.Flags().StringVar(&flagHostPersona, "host-persona", "", "Host persona: "+strings.Join(script.PersonaNames("host"), ", "))
	generateCmd.Flags().StringVar(&flagExpertPersona, "expert-persona", "", "Expert persona: "+strings.Join(script.PersonaNames("expert"), ", "))
	generateCmd.Flags().StringVarP(&flagTopics, "topics", "p", "", "Comma-separated topics the conversation should cover")
	generateCmd.Flags().StringVarP(&flagModel, "model", "m", "", "Script model: "+strings.Join(script.ModelNames(), ", "))
	generateCmd.Flags().BoolVarP(&flagScriptOnly, "script-only", "S", false, "Write the transcript only, skip synthesis")
	generateCmd.Flags().BoolVarP(&flagTUI, "tui", "t", false, "Interactive setup wizard for generation options")
	generateCmd.Flags().StringVar(&flagAnthropicKey, "anthropic-api-key", "", "Anthropic API key (overrides ANTHROPIC_API_KEY)")

	for _, c := range []*cobra.Command{generateCmd, synthesizeCmd} {
		c.Flags().IntVarP(&flagTargetWords, "target-words", "w", 0, "Upper bound on spoken words (0 = no limit)")
		c.Flags().StringVar(&flagPreset, "preset", "", "Voice preset (see list-voices)")
		c.Flags().StringVar(&flagHostVoice, "host-voice", "", "Host voice key; needs --expert-voice")
		c.Flags().StringVar(&flagExpertVoice, "expert-voice", "", "Expert voice key; needs --host-voice")
		c.Flags().StringVarP(&flagTTS, "tts", "T", "", "TTS provider: "+strings.Join(tts.ProviderNames(), ", "))
		c.Flags().IntVar(&flagWorkers, "workers", 0, "Concurrent synthesis requests (default from config)")
		c.Flags().StringVar(&flagElevenLabsKey, "elevenlabs-api-key", "", "ElevenLabs API key (overrides ELEVENLABS_API_KEY)")
	}

	listVoicesCmd.Flags().StringVarP(&flagTTS, "tts", "T", "", "Only list this provider")
	episodesCmd.Flags().IntVarP(&flagLimit, "limit", "n", 20, "Maximum number of episodes")
}

func Execute() error {
	return rootCmd.Execute()
}

func runGenerate(cmd *cobra.Command, args []string) error {
	if flagTUI {
		if err := runInteractiveSetup(); err != nil {
			return err
		}
	}
	if flagInput == "" {
		return errors.New("--input (-i) is required")
	}
	if flagLevel != "" && !script.IsValidLevel(flagLevel) {
		return fmt.Errorf("invalid level %q: must be one of %s", flagLevel, strings.Join(script.LevelNames(), ", "))
	}
	if flagTargetWords < 0 {
		return fmt.Errorf("--target-words must be >= 0 (got %d)", flagTargetWords)
	}

	env, err := openLocal(cmd.Context(), !flagScriptOnly)
	if err != nil {
		return err
	}
	defer env.Close()

	if flagScriptOnly {
		return env.writeScript(cmd.Context(), cmd.OutOrStdout())
	}
	return env.generate(cmd.Context(), cmd.OutOrStdout())
}

func runSynthesize(cmd *cobra.Command, args []string) error {
	if flagTargetWords < 0 {
		return fmt.Errorf("--target-words must be >= 0 (got %d)", flagTargetWords)
	}
	transcript, err := script.LoadTranscript(args[0])
	if err != nil {
		return err
	}

	env, err := openLocal(cmd.Context(), true)
	if err != nil {
		return err
	}
	defer env.Close()

	return env.synthesize(cmd.Context(), cmd.OutOrStdout(), transcript, args[0])
}

func runSegment(cmd *cobra.Command, args []string) error {
	transcript, err := script.LoadTranscript(args[0])
	if err != nil {
		return err
	}
	printSegmentation(cmd.OutOrStdout(), transcript, flagTargetWords)
	return nil
}

// printSegmentation runs the text stages of the pipeline and prints what
// each utterance would be synthesized as.
func printSegmentation(w io.Writer, transcript string, targetWords int) {
	cleaned := script.Shorten(script.Clean(transcript), targetWords)
	seg := script.Segment(cleaned)

	fmt.Fprintf(w, "Tier: %s\nUtterances: %d\nWords: %d\n\n", seg.Tier, len(seg.Utterances), script.WordCount(cleaned))

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "#\tSPEAKER\tSTYLE\tSTABILITY\tTEXT")
	for i, u := range seg.Utterances {
		c := tts.Classify(u.Text)
		fmt.Fprintf(tw, "%d\t%s\t%s\t%.2f\t%s\n", i, u.Speaker, c.Style, c.Settings.Stability, preview(u.Text, 60))
	}
	tw.Flush()

	if issues := script.Review(seg); len(issues) > 0 {
		fmt.Fprintln(w, "\nReview:")
		for _, issue := range issues {
			fmt.Fprintf(w, "  [%s] %s\n", issue.Category, issue.Message)
		}
	}
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

func runListVoices(cmd *cobra.Command, args []string) error {
	providers := tts.ProviderNames()
	if flagTTS != "" {
		providers = []string{flagTTS}
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "\nAvailable voices:")
	for _, name := range providers {
		dir, err := tts.DefaultDirectory(name)
		if err != nil {
			return err
		}
		printDirectory(out, dir)
	}
	fmt.Fprintln(out)
	return nil
}

func printDirectory(w io.Writer, dir *tts.Directory) {
	fmt.Fprintf(w, "\n  %s (directory v%d)\n", strings.ToUpper(dir.Provider()), dir.Version())
	fmt.Fprintf(w, "  %s\n", strings.Repeat("─", 50))
	fmt.Fprintf(w, "  %-12s %-28s %-12s %-8s %s\n", "KEY", "ID", "NAME", "GENDER", "DESCRIPTION")
	for _, v := range dir.Voices() {
		def := ""
		if role := dir.DefaultFor(v.Key); role != "" {
			def = fmt.Sprintf(" (default %s)", role)
		}
		fmt.Fprintf(w, "  %-12s %-28s %-12s %-8s %s%s\n", v.Key, v.ID, v.Name, v.Gender, v.Description, def)
	}

	fmt.Fprintf(w, "\n  %-12s %-24s %s\n", "PRESET", "HOST / EXPERT", "DESCRIPTION")
	for _, p := range dir.Presets() {
		mark := ""
		if p.Key == dir.DefaultPreset() {
			mark = " (default)"
		}
		fmt.Fprintf(w, "  %-12s %-24s %s%s\n", p.Key, p.Host+" / "+p.Expert, p.Description, mark)
	}
}

func runEpisodes(cmd *cobra.Command, args []string) error {
	st, err := openLocalStore(cmd.Context())
	if err != nil {
		return err
	}
	defer st.Close()

	eps, _, err := st.List(cmd.Context(), flagLimit, "")
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(eps) == 0 {
		fmt.Fprintln(out, "No episodes yet.")
		return nil
	}
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tDURATION\tTITLE\tAUDIO")
	for _, ep := range eps {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", ep.ID, ep.Status, ep.Duration, preview(ep.Title, 40), ep.AudioURL)
	}
	return tw.Flush()
}

// progressCallback shows a live display unless verbose logging is on.
func progressCallback() (progress.Callback, func()) {
	if flagVerbose {
		return progress.NopCallback, func() {}
	}
	d := progress.NewDisplay(os.Stdout)
	return d.Handle, d.Finish
}
