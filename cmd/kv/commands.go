package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/ValentinKolb/kvenv/lib/store"
	"github.com/spf13/cobra"
)

var (
	putCmd = &cobra.Command{
		Use:   "put [bucket] [key] [value]",
		Short: "Sets the value for a key",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, key, value := args[0], args[1], args[2]
			h, err := openStore(bucket)
			if err != nil {
				return err
			}
			err = h.Write(func(s *store.Store) error {
				return s.Put(bucket, []byte(key), []byte(value))
			})
			if err != nil {
				return err
			}
			fmt.Println("put successfully")
			return nil
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [bucket] [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, key := args[0], args[1]
			h, err := openStore(bucket)
			if err != nil {
				return err
			}
			return h.Read(func(s *store.Store) error {
				value, ok, err := s.Get(bucket, []byte(key))
				if err != nil {
					return err
				}
				fmt.Printf("key=%s, found=%v, value=%s\n", key, ok, value)
				return nil
			})
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [bucket] [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, key := args[0], args[1]
			h, err := openStore(bucket)
			if err != nil {
				return err
			}
			err = h.Write(func(s *store.Store) error {
				return s.Delete(bucket, []byte(key))
			})
			if err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [bucket] [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket, key := args[0], args[1]
			h, err := openStore(bucket)
			if err != nil {
				return err
			}
			return h.Read(func(s *store.Store) error {
				found, err := s.Has(bucket, []byte(key))
				if err != nil {
					return err
				}
				fmt.Printf("key=%s, found=%t\n", key, found)
				return nil
			})
		},
	}
	listCmd = &cobra.Command{
		Use:   "list [bucket]",
		Short: "Lists all key value pairs of a bucket in key order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			bucket := args[0]
			h, err := openStore(bucket)
			if err != nil {
				return err
			}
			return h.Read(func(s *store.Store) error {
				n := 0
				err := s.ForEach(bucket, func(k, v []byte) error {
					fmt.Printf("%s=%s\n", k, v)
					n++
					return nil
				})
				if err != nil {
					return err
				}
				fmt.Printf("(%d entries)\n", n)
				return nil
			})
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints information about the database and the manager metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := openStore("")
			if err != nil {
				return err
			}

			var info store.Info
			err = h.Read(func(s *store.Store) error {
				info, err = s.Info()
				return err
			})
			if err != nil {
				return err
			}

			if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
				enc := json.NewEncoder(os.Stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(info)
			}
			printInfo(h.Path(), info)
			fmt.Println()
			fmt.Println("METRICS")
			mgr.WriteMetrics(os.Stdout)
			return nil
		},
	}
)

func init() {
	infoCmd.Flags().Bool("json", false, "Print the info as JSON")
}

func printInfo(path string, info store.Info) {
	addField := func(name string, value any) {
		fmt.Printf("  %-22s: %v\n", name, value)
	}

	fmt.Println("ENVIRONMENT")
	addField("Path", path)
	addField("Engine", info.Implementation)
	addField("Readonly", info.Readonly)
	addField("Map Size", fmt.Sprintf("%d bytes", info.Env.MapSize))
	addField("Page Size", fmt.Sprintf("%d bytes", info.Env.PageSize))
	addField("Reader Slots", fmt.Sprintf("%d used of %d", info.Env.NumReaders, info.Env.MaxReaders))
	addField("Last Txn ID", info.Env.LastTxnID)

	fmt.Println()
	fmt.Println("BUCKETS")
	names := make([]string, 0, len(info.Buckets))
	for name := range info.Buckets {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		st := info.Buckets[name]
		label := name
		if label == "" {
			label = "(default)"
		}
		addField(label, fmt.Sprintf("%d entries, depth %d, %d leaf pages", st.Entries, st.Depth, st.LeafPages))
	}
}
