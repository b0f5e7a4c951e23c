package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/wakaranaidev/koware/internal/config"
	"github.com/wakaranaidev/koware/internal/database"
	"github.com/wakaranaidev/koware/internal/history"
	"github.com/wakaranaidev/koware/internal/providers"
	"github.com/wakaranaidev/koware/internal/providers/anime/allanime"
	"github.com/wakaranaidev/koware/internal/providers/anime/hianime"
	providerhttp "github.com/wakaranaidev/koware/internal/providers/http"
	"github.com/wakaranaidev/koware/internal/providers/utils"
	"github.com/wakaranaidev/koware/pkg/extractors"
	"github.com/wakaranaidev/koware/pkg/types"
)

var (
	// set via ldflags during build
	version = "dev"

	cfgFile  string
	logLevel string

	cfg    *config.Config
	logger *slog.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "koware",
	Short:   "Resolve anime search results, episode lists, and playable stream links",
	Version: version,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		logger, err = config.InitLogger(&cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $XDG_CONFIG_HOME/koware/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level (debug, info, warn, error)")

	searchCmd.Flags().String("status", "", "filter by status: ongoing, completed, upcoming")
	searchCmd.Flags().Int("year", 0, "filter by release year")

	episodesCmd.Flags().StringP("id", "i", "", "anime id (namespaced, as printed by search)")
	_ = episodesCmd.MarkFlagRequired("id")

	streamsCmd.Flags().StringP("id", "i", "", "episode id (namespaced, as printed by episodes)")
	streamsCmd.Flags().String("title", "", "anime title to record in watch history")
	_ = streamsCmd.MarkFlagRequired("id")

	historyCmd.Flags().IntP("limit", "n", 20, "number of entries to show")
	historyCmd.Flags().StringP("id", "i", "", "only show entries for this anime id")

	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(popularCmd)
	rootCmd.AddCommand(episodesCmd)
	rootCmd.AddCommand(streamsCmd)
	rootCmd.AddCommand(historyCmd)
}

// buildCatalog wires the configured providers into a composite catalog.
func buildCatalog() providers.Catalog {
	client := providerhttp.NewClient(providerhttp.ClientConfig{
		Timeout:     cfg.HTTP.Timeout,
		MaxAttempts: cfg.HTTP.MaxAttempts,
		UserAgent:   cfg.HTTP.UserAgent,
		Debug:       cfg.HTTP.Debug,
		Logger:      logger,
	})

	all := allanime.New(allanime.Config{
		BaseURL:         cfg.Providers.AllAnime.BaseURL,
		APIURL:          cfg.Providers.AllAnime.APIURL,
		SourceBaseURL:   cfg.Providers.AllAnime.SourceBaseURL,
		TranslationType: cfg.Providers.AllAnime.TranslationType,
		SearchLimit:     cfg.Providers.AllAnime.SearchLimit,
	}, client, logger)

	extractor := extractors.NewMegaCloud(client, logger)
	hi := hianime.New(hianime.Config{
		BaseURL:         cfg.Providers.HiAnime.BaseURL,
		PreferredServer: cfg.Providers.HiAnime.PreferredServer,
		SearchLimit:     cfg.Providers.HiAnime.SearchLimit,
	}, client, extractor, logger)

	enabled := map[string]bool{
		allanime.Name: cfg.Providers.AllAnime.Enabled,
		hianime.Name:  cfg.Providers.HiAnime.Enabled,
	}

	var primary, secondary providers.Catalog = all, hi
	if cfg.Providers.Primary == hianime.Name {
		primary, secondary = hi, all
	}
	return providers.NewComposite(primary, secondary, enabled, logger)
}

func searchFilters(cmd *cobra.Command) types.SearchFilters {
	var filters types.SearchFilters
	switch status, _ := cmd.Flags().GetString("status"); status {
	case "ongoing":
		filters.Status = types.StatusOngoing
	case "completed":
		filters.Status = types.StatusCompleted
	case "upcoming":
		filters.Status = types.StatusUpcoming
	}
	filters.Year, _ = cmd.Flags().GetInt("year")
	return filters
}

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search for anime across the configured providers",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := buildCatalog()
		results, err := catalog.Search(context.Background(), args[0], searchFilters(cmd))
		if err != nil {
			return err
		}
		printAnime(results)
		return nil
	},
}

var popularCmd = &cobra.Command{
	Use:   "popular",
	Short: "List currently popular anime",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := buildCatalog()
		results, err := catalog.BrowsePopular(context.Background(), types.SearchFilters{})
		if err != nil {
			return err
		}
		printAnime(results)
		return nil
	},
}

var episodesCmd = &cobra.Command{
	Use:   "episodes",
	Short: "List the episodes of an anime",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		catalog := buildCatalog()
		episodes, err := catalog.GetEpisodes(context.Background(), types.Anime{ID: types.AnimeID(id)})
		if err != nil {
			return err
		}
		if len(episodes) == 0 {
			fmt.Println("no episodes found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, ep := range episodes {
			fmt.Fprintf(w, "%d\t%s\t%s\n", ep.Number, ep.ID, utils.TruncateString(ep.Title, 60))
		}
		return w.Flush()
	},
}

var streamsCmd = &cobra.Command{
	Use:   "streams",
	Short: "Resolve playable stream links for an episode",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		id, _ := cmd.Flags().GetString("id")
		catalog := buildCatalog()
		links, err := catalog.GetStreams(context.Background(), types.Episode{ID: types.EpisodeID(id)})
		if err != nil {
			return err
		}
		if len(links) == 0 {
			fmt.Println("no streams found")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, link := range links {
			subs := ""
			if link.NeedsSoftSubs() {
				subs = fmt.Sprintf("%d subtitle tracks", len(link.Subtitles))
			}
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", link.Quality, link.Source, link.URL, subs)
		}
		if err := w.Flush(); err != nil {
			return err
		}

		title, _ := cmd.Flags().GetString("title")
		recordWatch(types.EpisodeID(id), title, links[0].Quality)
		return nil
	},
}

// recordWatch persists a resolved episode so the history command can list
// it later. Resolution already succeeded, so a history failure is only
// worth a warning.
func recordWatch(episodeID types.EpisodeID, title, quality string) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		logger.Warn("watch history unavailable", "error", err)
		return
	}
	anime := types.Anime{ID: watchAnimeID(episodeID), Title: title}
	episode := types.Episode{ID: episodeID, Number: watchEpisodeNumber(episodeID)}
	if err := history.NewService(db).RecordWatch(anime, episode, quality); err != nil {
		logger.Warn("failed to record watch", "episode", episodeID, "error", err)
	}
}

// Episode ids of the form provider:show:ep-N carry enough to rebuild the
// show id and the episode position. Opaque ids record with neither.
func watchAnimeID(id types.EpisodeID) types.AnimeID {
	if i := strings.LastIndex(string(id), ":ep-"); i > 0 {
		return types.AnimeID(id[:i])
	}
	return ""
}

func watchEpisodeNumber(id types.EpisodeID) int {
	if i := strings.LastIndex(string(id), ":ep-"); i > 0 {
		return utils.ParseInt(string(id[i+len(":ep-"):]))
	}
	return 0
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recently watched episodes",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := database.Open(cfg.Database.Path)
		if err != nil {
			return err
		}
		svc := history.NewService(db)

		var entries []database.WatchEntry
		if animeID, _ := cmd.Flags().GetString("id"); animeID != "" {
			entries, err = svc.ForAnime(types.AnimeID(animeID))
		} else {
			limit, _ := cmd.Flags().GetInt("limit")
			entries, err = svc.Recent(limit)
		}
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("no watch history")
			return nil
		}
		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		for _, e := range entries {
			fmt.Fprintf(w, "%s\t%s\tep %d\t%s\n",
				e.WatchedAt.Format("2006-01-02 15:04"),
				utils.TruncateString(e.Title, 40), e.EpisodeNum, e.Provider)
		}
		return w.Flush()
	},
}

func printAnime(results []types.Anime) {
	if len(results) == 0 {
		fmt.Println("no results")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	for _, a := range results {
		fmt.Fprintf(w, "%s\t%s\n", a.ID, utils.TruncateString(a.Title, 60))
	}
	w.Flush()
}
