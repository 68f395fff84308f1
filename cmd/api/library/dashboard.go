package library

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// Stats is the dashboard summary. InStockBooks counts the copies currently
// on the shelves and BorrowedBooks the copies currently lent out.
type Stats struct {
	UserCount     int
	BookCount     int
	BorrowedBooks int
	InStockBooks  int
}

/* Runs the four dashboard queries concurrently. They do not share a snapshot, so the figures are only approximately consistent with each other. */
func (s *Service) DashboardStats(ctx context.Context) (Stats, error) {
	var stats Stats
	var books []Book
	var assignments []Assignment

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.UserCount, err = s.repo.CountUsers(gctx)
		return err
	})
	g.Go(func() (err error) {
		stats.BookCount, err = s.repo.CountBooks(gctx)
		return err
	})
	g.Go(func() (err error) {
		books, err = s.repo.ListBooks(gctx)
		return err
	})
	g.Go(func() (err error) {
		assignments, err = s.repo.ListAssignments(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return Stats{}, repoErr("DashboardStats", err)
	}

	for _, b := range books {
		stats.InStockBooks += b.Quantity
	}
	for _, a := range assignments {
		stats.BorrowedBooks += a.Units()
	}

	return stats, nil
}
