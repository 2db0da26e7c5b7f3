package app

import (
	"context"
	"fmt"
	"time"

	"github.com/SangusIT/loanshare/internal/loans/api/server"
	"github.com/SangusIT/loanshare/internal/loans/repository/loancache/redis"
	lr "github.com/SangusIT/loanshare/internal/loans/repository/loanrepo/postgres"
	ur "github.com/SangusIT/loanshare/internal/loans/repository/userrepo/postgres"
	"github.com/SangusIT/loanshare/internal/loans/services/authservice"
	"github.com/SangusIT/loanshare/internal/loans/services/loanservice"
	"github.com/SangusIT/loanshare/internal/pkg/config"
	"github.com/SangusIT/loanshare/pkg/logger"
)

type Server interface {
	Start(context.Context) error
	Shutdown(context.Context) error
}

type LoanshareApp struct {
	s   Server
	lg  logger.Logger
	cfg config.Config
}

func New(ctx context.Context, cfg config.Config) (LoanshareApp, error) {
	lg, err := logger.New(cfg.Logger)
	if err != nil {
		return LoanshareApp{}, fmt.Errorf("can't get logger error: %w", err)
	}

	loanRepo, err := lr.New(ctx, cfg.PostgresDB)
	if err != nil {
		return LoanshareApp{}, fmt.Errorf("postgres loan repo initializing error: %w", err)
	}

	lc, err := redis.New(ctx, cfg.RedisCache)
	if err != nil {
		return LoanshareApp{}, fmt.Errorf("redis loan cache initializing error: %w", err)
	}

	userRepo, err := ur.New(ctx, cfg.PostgresDB)
	if err != nil {
		return LoanshareApp{}, fmt.Errorf("postgres user repo initializing error: %w", err)
	}

	loanService := loanservice.New(loanRepo, lc, userRepo, lg)

	go loanService.BackgroundRefresh(ctx, cfg.RedisCache.ExpTime)

	authService := authservice.New(userRepo, cfg.Auth)

	s := server.New(cfg.Server, loanService, authService, lg)

	return LoanshareApp{
		s:   s,
		lg:  lg,
		cfg: cfg,
	}, nil
}

func (la *LoanshareApp) Run(ctx context.Context) {
	la.lg.Infof("STARTED SERVER ON %s", la.cfg.Server.Addr)

	go func() {
		if err := la.s.Start(ctx); err != nil {
			la.lg.Errorf("server start error: %s", err.Error())
			ctx.Done()

			return
		}
	}()

	<-ctx.Done()

	ctxS, cancel := context.WithTimeout(context.Background(), time.Second*5) //nolint:gomnd
	defer cancel()

	if err := la.Stop(ctxS); err != nil { //nolint:contextcheck
		la.lg.Errorf("server shutdown error: %s", err.Error())
	}
}

func (la *LoanshareApp) Stop(ctx context.Context) error {
	if err := la.s.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown error: %w", err)
	}

	la.lg.Info("Shutdowned successfully")

	return nil
}
