package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"vizflow/internal/format"
	"vizflow/internal/rendercache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the render cache",
}

var cacheShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List cached visualizations across session keys",
	RunE:  runCacheShow,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove the cached visualization for the configured session key",
	RunE:  runCacheClear,
}

func init() {
	cacheCmd.AddCommand(cacheShowCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}

func openSQLCache() (*rendercache.SQLCache, error) {
	if appConfig.Cache.Disabled {
		return nil, fmt.Errorf("render cache is disabled")
	}
	return rendercache.Open(appConfig.Cache.Path, appConfig.Cache.SessionKey)
}

func runCacheShow(cmd *cobra.Command, _ []string) error {
	c, err := openSQLCache()
	if err != nil {
		return err
	}
	defer c.Close()

	entries, err := c.Sessions()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(entries) == 0 {
		fmt.Fprintf(out, "Render cache at %s is empty.\n", appConfig.Cache.Path)
		return nil
	}
	fmt.Fprintln(out, format.CacheTable(format.ASCII, entries))
	return nil
}

func runCacheClear(cmd *cobra.Command, _ []string) error {
	c, err := openSQLCache()
	if err != nil {
		return err
	}
	defer c.Close()

	_, ok, err := c.Load()
	if err != nil {
		return err
	}
	if err := c.Clear(); err != nil {
		return err
	}
	if ok {
		fmt.Fprintf(cmd.OutOrStdout(), "Cleared cached visualization for session %q.\n", appConfig.Cache.SessionKey)
	} else {
		fmt.Fprintf(cmd.OutOrStdout(), "Nothing cached for session %q.\n", appConfig.Cache.SessionKey)
	}
	return nil
}
