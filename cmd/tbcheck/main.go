package main

import (
	"context"
	"log"
	"os"
	"strings"
	"time"

	"github.com/park285/Cheese-Endgame-Trainer/internal/eval"
	"github.com/redis/go-redis/v9"
)

// Probe position: KPvK, white to move, tablebase win.
const probeFEN = "4k3/8/4K3/4P3/8/8/8/8 w - - 0 1"

func main() {
	tbURL := strings.TrimSpace(os.Getenv("TABLEBASE_URL"))
	if tbURL == "" {
		tbURL = "https://tablebase.lichess.ovh/standard"
	}
	redisURL := strings.TrimSpace(os.Getenv("REDIS_URL"))
	enginePath := strings.TrimSpace(os.Getenv("STOCKFISH_PATH"))

	failed := false

	tb := eval.NewTablebaseClient(tbURL, eval.WithTimeout(8*time.Second))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	ev, err := tb.Analyze(ctx, probeFEN, eval.Config{})
	cancel()
	if err != nil {
		log.Printf("tablebase error: %v", err)
		failed = true
	} else {
		log.Printf("tablebase ok: category=%s dtz=%d score=%d", ev.Tablebase.Category, ev.Tablebase.DTZ, ev.Score)
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		best, err := tb.BestMove(ctx, probeFEN)
		cancel()
		if err != nil {
			log.Printf("tablebase bestmove error: %v", err)
			failed = true
		} else {
			log.Printf("tablebase bestmove ok: %s", best)
		}
	}

	if redisURL == "" {
		log.Println("REDIS_URL not set; skipping redis check")
	} else {
		opts, err := redis.ParseURL(redisURL)
		if err != nil {
			log.Printf("redis url error: %v", err)
			failed = true
		} else {
			rdb := redis.NewClient(opts)
			ctx, cancel = context.WithTimeout(context.Background(), 5*time.Second)
			err = rdb.Ping(ctx).Err()
			cancel()
			_ = rdb.Close()
			if err != nil {
				log.Printf("redis error: %v", err)
				failed = true
			} else {
				log.Println("redis ok")
			}
		}
	}

	if enginePath == "" {
		log.Println("STOCKFISH_PATH not set; skipping engine check")
	} else {
		engine, err := eval.NewEngineProvider(enginePath, 1, eval.Config{Depth: 10, TimeLimitMs: 1000})
		if err != nil {
			log.Printf("engine start error: %v", err)
			failed = true
		} else {
			ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
			best, err := engine.BestMove(ctx, probeFEN)
			cancel()
			if err != nil {
				log.Printf("engine error: %v", err)
				failed = true
			} else {
				log.Printf("engine ok: bestmove=%s", best)
			}
			_ = engine.Close()
		}
	}

	if failed {
		os.Exit(1)
	}
}
