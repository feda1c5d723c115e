package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/solvaholic/rally/internal/cache"
)

// cacheCmd represents the cache command
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Manage cache",
	Long:  `Inspect the local cache of fetched responses and the record database.`,
}

// cacheInfoCmd represents the cache info command
var cacheInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show cache information",
	Long:  `Display statistics about the local cache including size, record counts, and message date range.`,
	RunE:  runCacheInfo,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
}

func runCacheInfo(cmd *cobra.Command, args []string) error {
	cacheDir, err := cache.CacheDir()
	if err != nil {
		return fmt.Errorf("failed to get cache directory: %w", err)
	}

	// Raw responses by kind
	rawStats := calculateDirStats(filepath.Join(cacheDir, "raw"))
	kinds, err := cache.DiscoverKinds()
	if err != nil {
		return err
	}
	byKind := make(map[string]interface{}, len(kinds))
	for _, kind := range kinds {
		keys, err := cache.ListKeys(kind)
		if err != nil {
			return err
		}
		dir, _ := cache.RawDir(kind)
		byKind[kind] = map[string]interface{}{
			"responses": len(keys),
			"size":      formatBytes(calculateDirStats(dir).Size),
		}
	}

	database, err := openDB()
	if err != nil {
		return err
	}
	defer database.Close()

	stats, err := database.Stats()
	if err != nil {
		return fmt.Errorf("failed to read database stats: %w", err)
	}

	// Build output
	output := map[string]interface{}{
		"status":         "success",
		"cache_location": cacheDir,
		"database":       database.Path(),
		"total_size":     formatBytes(rawStats.Size + stats.DatabaseSize),
		"raw": map[string]interface{}{
			"size":    formatBytes(rawStats.Size),
			"files":   rawStats.FileCount,
			"by_kind": byKind,
		},
		"records": map[string]int64{
			"activities":    stats.ActivityCount,
			"chats":         stats.ChatCount,
			"messages":      stats.MessageCount,
			"users":         stats.UserCount,
			"chat_list":     stats.ChatListItemCount,
			"raw_responses": stats.RawResponseCount,
		},
		"database_size": formatBytes(stats.DatabaseSize),
	}

	if stats.EarliestMessage != nil && stats.LatestMessage != nil {
		output["date_range"] = map[string]string{
			"earliest": stats.EarliestMessage.Format(time.RFC3339),
			"latest":   stats.LatestMessage.Format(time.RFC3339),
		}
	}

	if session, err := cache.GetSession(); err == nil {
		output["session"] = map[string]interface{}{
			"user_id":   session.UserID,
			"base_url":  session.BaseURL,
			"cached_at": session.CachedAt.Format(time.RFC3339),
		}
	}

	return OutputJSON(output)
}

type dirStats struct {
	Size      int64
	FileCount int
}

func calculateDirStats(dir string) dirStats {
	var stats dirStats

	filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if !info.IsDir() {
			stats.Size += info.Size()
			stats.FileCount++
		}
		return nil
	})

	return stats
}

func formatBytes(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d B", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
