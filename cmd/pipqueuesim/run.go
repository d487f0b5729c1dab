package main

import (
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	dispatch "github.com/go-foundations/dispatchqueue"
	"github.com/go-foundations/dispatchqueue/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Enqueue synthetic pips across every dispatcher kind and run them to completion",
	RunE:  runSimulation,
}

func init() {
	runCmd.Flags().Int32("parallel-degree", 4, "slot budget per queue")
	runCmd.Flags().Bool("weighted", true, "budget slots by pip weight instead of pip count")
	runCmd.Flags().Int("pips-per-kind", 25, "synthetic pips enqueued per dispatcher kind")
	runCmd.Flags().Int("fail-pct", 5, "percentage chance a pip's Run returns an error")
	runCmd.Flags().String("metrics-addr", "", "if set, serve Prometheus metrics on this address until the run completes")

	_ = viper.BindPFlag("parallel_degree", runCmd.Flags().Lookup("parallel-degree"))
	_ = viper.BindPFlag("weighted", runCmd.Flags().Lookup("weighted"))
	_ = viper.BindPFlag("pips_per_kind", runCmd.Flags().Lookup("pips-per-kind"))
	_ = viper.BindPFlag("fail_pct", runCmd.Flags().Lookup("fail-pct"))
	_ = viper.BindPFlag("metrics_addr", runCmd.Flags().Lookup("metrics-addr"))
}

func runSimulation(cmd *cobra.Command, args []string) error {
	parallelDegree := int32(viper.GetInt("parallel_degree"))
	useWeight := viper.GetBool("weighted")
	pipsPerKind := viper.GetInt("pips_per_kind")
	failPct := viper.GetInt("fail_pct")
	metricsAddr := viper.GetString("metrics_addr")

	m := metrics.NewMetrics(nil)

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		server := &http.Server{Addr: metricsAddr, Handler: mux}
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
		defer server.Close()
	}

	scheduler := newPipScheduler(m, parallelDegree, useWeight)
	defer scheduler.disposeAll()

	start := time.Now()
	for _, kind := range allKinds {
		for i := 0; i < pipsPerKind; i++ {
			pipType := dispatch.PipTypeOther
			if i%4 == 0 {
				pipType = dispatch.PipTypeProcess
			}
			weight := int32(1 + rand.Intn(3))
			priority := int32(rand.Intn(100))
			pip := newSimPip(kind, m, priority, weight, pipType, time.Millisecond, 5*time.Millisecond, failPct)
			if err := scheduler.enqueue(kind, pip); err != nil {
				return fmt.Errorf("enqueue pip onto %s: %w", kind, err)
			}
		}
	}

	scheduler.dispatchAll()
	scheduler.wait()
	scheduler.reportAll()

	log.Info().
		Dur("elapsed", time.Since(start)).
		Int("kinds", len(allKinds)).
		Int("pips_per_kind", pipsPerKind).
		Msg("simulation complete")
	return nil
}
