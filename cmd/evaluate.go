package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/manifoldco/promptui"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/spigell/search-evaluator/internal/evaluation"
	"github.com/spigell/search-evaluator/internal/logger"
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate",
	Short: "Evaluate a single query/item pair and print the result as JSON",
	Run: func(cmd *cobra.Command, _ []string) {
		evaluate(cmd)
	},
}

func init() {
	rootCmd.AddCommand(evaluateCmd)

	evaluateCmd.Flags().StringP("file", "f", "", "json file with the query item, '-' reads stdin")
	evaluateCmd.Flags().BoolP("interactive", "i", false, "enter the query item field by field")
}

func evaluate(cmd *cobra.Command) {
	ctx := context.Background()

	logger, err := logger.New(viper.GetBool("json"), viper.GetBool("debug"), zap.String("service", app))
	if err != nil {
		log.Fatalf("creating a logger: %s", err)
	}

	config, err := getConfig()
	if err != nil {
		logger.Fatal("getting a config", zap.Error(err))
	}

	item, err := loadItem(cmd)
	if err != nil {
		logger.Fatal("reading the query item", zap.Error(err))
	}

	generator, err := newGenerator(ctx, config.AI, logger)
	if err != nil {
		logger.Fatal("creating a model client", zap.Error(err))
	}

	evaluator := evaluation.NewEvaluator(generator, logger, evaluation.WithMaxLogLength(config.AI.MaxLogLength))

	result, err := evaluator.Evaluate(ctx, item)
	if err != nil {
		logger.Fatal("evaluation failed", zap.Error(err))
	}

	if err := printJSON(os.Stdout, result); err != nil {
		logger.Fatal("printing the result", zap.Error(err))
	}
}

func loadItem(cmd *cobra.Command) (*evaluation.QueryItem, error) {
	interactive, _ := cmd.Flags().GetBool("interactive")
	if interactive {
		return promptItem()
	}

	path, _ := cmd.Flags().GetString("file")
	switch strings.TrimSpace(path) {
	case "":
		return nil, errors.New("either --file or --interactive is required")
	case "-":
		return readItem(os.Stdin)
	default:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open query item file: %w", err)
		}
		defer f.Close()
		return readItem(f)
	}
}

func readItem(r io.Reader) (*evaluation.QueryItem, error) {
	var item evaluation.QueryItem
	if err := json.NewDecoder(r).Decode(&item); err != nil {
		return nil, evaluation.WrapError(evaluation.ErrInvalidInput, "decode query item", err)
	}
	if err := validateItem(&item); err != nil {
		return nil, err
	}
	return &item, nil
}

func validateItem(item *evaluation.QueryItem) error {
	if strings.TrimSpace(item.Query) == "" {
		return evaluation.WrapError(evaluation.ErrInvalidInput, "validate query item", errors.New("query is required"))
	}
	if item.ItemAttributes == nil {
		item.ItemAttributes = map[string]string{}
	}
	return nil
}

func promptItem() (*evaluation.QueryItem, error) {
	ask := func(label string, required bool) (string, error) {
		p := promptui.Prompt{Label: label}
		if required {
			p.Validate = func(s string) error {
				if strings.TrimSpace(s) == "" {
					return errors.New("value is required")
				}
				return nil
			}
		}
		return p.Run()
	}

	item := &evaluation.QueryItem{}
	fields := []struct {
		label    string
		required bool
		target   *string
	}{
		{"Query", true, &item.Query},
		{"Item title", false, &item.ItemTitle},
		{"Item description", false, &item.ItemDescription},
		{"Item category", false, &item.ItemCategory},
	}
	for _, f := range fields {
		value, err := ask(f.label, f.required)
		if err != nil {
			return nil, err
		}
		*f.target = strings.TrimSpace(value)
	}

	rawAttrs, err := ask("Item attributes (key=value, comma separated)", false)
	if err != nil {
		return nil, err
	}
	if item.ItemAttributes, err = parseAttributes(rawAttrs); err != nil {
		return nil, err
	}

	rawPrice, err := ask("Item price (optional)", false)
	if err != nil {
		return nil, err
	}
	if item.ItemPrice, err = parsePrice(rawPrice); err != nil {
		return nil, err
	}

	return item, validateItem(item)
}

func parseAttributes(raw string) (map[string]string, error) {
	attrs := map[string]string{}
	for _, pair := range strings.Split(raw, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		key, value, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(key) == "" {
			return nil, fmt.Errorf("invalid attribute %q, expected key=value", pair)
		}
		attrs[strings.TrimSpace(key)] = strings.TrimSpace(value)
	}
	return attrs, nil
}

func parsePrice(raw string) (*float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid price %q: %w", raw, err)
	}
	return &price, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
