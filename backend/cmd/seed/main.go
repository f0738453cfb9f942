package main

import (
	"context"
	"flag"
	"fmt"
	"math/rand/v2"

	"go.uber.org/zap"

	"graphfeed/backend/internal/content"
	"graphfeed/backend/internal/graph"
	"graphfeed/backend/internal/store"
	"graphfeed/backend/internal/thread"
	"graphfeed/backend/internal/toggle"
	"graphfeed/backend/pkg/config"
	"graphfeed/backend/pkg/logger"
)

func main() {
	users := flag.Int("users", 8, "Number of demo users to create")
	posts := flag.Int("posts", 3, "Posts per user")
	seed := flag.Uint64("seed", 1, "Random seed for the generated relations")
	logLevel := flag.String("log-level", "info", "Minimum log level")
	flag.Parse()

	// Initialize logger
	if err := logger.Init("development", *logLevel); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting database seeding...")

	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("Failed to load configuration", zap.Error(err))
	}

	ctx := context.Background()
	driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	repo := graph.NewRepository(driver,
		graph.WithDatabase(cfg.Neo4jDatabase),
		graph.WithOpTimeout(cfg.StoreOpTimeout),
	)
	defer repo.Close(context.Background())

	log.Info("Creating constraints and indexes...")
	if err := repo.EnsureSchema(ctx); err != nil {
		log.Fatal("Failed to ensure schema", zap.Error(err))
	}

	s := &seeder{
		content: content.NewService(repo),
		toggler: toggle.NewToggler(repo),
		threads: thread.NewService(repo),
		rng:     rand.New(rand.NewPCG(*seed, *seed)),
		log:     log,
	}
	if err := s.run(ctx, *users, *posts); err != nil {
		log.Fatal("Seeding failed", zap.Error(err))
	}

	log.Info("Seeding complete",
		zap.Int("users", len(s.userIDs)),
		zap.Int("posts", len(s.postIDs)),
		zap.Int("toggles", s.toggles),
		zap.Int("comments", s.comments),
	)
}

type seeder struct {
	content *content.Service
	toggler *toggle.Toggler
	threads *thread.Service
	rng     *rand.Rand
	log     *zap.Logger

	userIDs  []string
	postIDs  []string
	toggles  int
	comments int
}

func (s *seeder) run(ctx context.Context, users, postsPerUser int) error {
	for i := 0; i < users; i++ {
		u, err := s.content.RegisterUser(ctx, fmt.Sprintf("reader%02d", i), fmt.Sprintf("reader%02d@example.com", i))
		if err != nil {
			return fmt.Errorf("register user %d: %w", i, err)
		}
		s.userIDs = append(s.userIDs, u.ID)

		for j := 0; j < postsPerUser; j++ {
			subtitle := fmt.Sprintf("Part %d", j+1)
			p, err := s.content.Publish(ctx, u.ID,
				fmt.Sprintf("Notes from %s #%d", u.Username, j+1),
				&subtitle,
				"A demo post created by the seeder.",
			)
			if err != nil {
				return fmt.Errorf("publish post for %s: %w", u.ID, err)
			}
			s.postIDs = append(s.postIDs, p.ID)
		}
	}

	for _, actor := range s.userIDs {
		for _, other := range s.userIDs {
			if other != actor && s.rng.IntN(3) == 0 {
				if err := s.toggle(ctx, actor, other, toggle.Follow); err != nil {
					return err
				}
			}
		}
		for _, postID := range s.postIDs {
			switch s.rng.IntN(6) {
			case 0:
				if err := s.toggle(ctx, actor, postID, toggle.Like); err != nil {
					return err
				}
			case 1:
				if err := s.toggle(ctx, actor, postID, toggle.Bookmark); err != nil {
					return err
				}
			case 2:
				if err := s.discuss(ctx, actor, postID); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *seeder) toggle(ctx context.Context, actor, target string, kind toggle.Kind) error {
	if _, err := s.toggler.Toggle(ctx, actor, target, kind); err != nil {
		return fmt.Errorf("%s %s -> %s: %w", kind, actor, target, err)
	}
	s.toggles++
	return nil
}

// discuss leaves a comment and a short reply chain from random users
func (s *seeder) discuss(ctx context.Context, actor, postID string) error {
	c, err := s.threads.Comment(ctx, postID, actor, "Interesting read.")
	if err != nil {
		return fmt.Errorf("comment on %s: %w", postID, err)
	}
	s.comments++

	parent := c
	for depth := s.rng.IntN(3); depth > 0; depth-- {
		replier := s.userIDs[s.rng.IntN(len(s.userIDs))]
		var reply *store.CommentRecord
		reply, err = s.threads.Reply(ctx, postID, parent.ID, replier, "Agreed, and one more thought.")
		if err != nil {
			return fmt.Errorf("reply to %s: %w", parent.ID, err)
		}
		s.comments++
		parent = reply
	}
	return nil
}
