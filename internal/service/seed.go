package service

import (
	"time"

	"github.com/alanyoungcy/predictpool/internal/domain"
)

// DefaultSeedMarkets is the demo catalogue loaded by the seed mode.
func DefaultSeedMarkets() []domain.NewMarket {
	entity := "react"
	metric := "github_stars"
	target := 250000.0

	return []domain.NewMarket{
		{
			Slug:               "react-250k-stars-2025",
			Title:              "React will reach 250k GitHub stars by end of 2025",
			Description:        "Will React's GitHub repository reach 250,000 stars before December 31, 2025?",
			Category:           domain.CategoryToolGrowth,
			TargetEntity:       &entity,
			TargetMetric:       &metric,
			TargetValue:        &target,
			ResolutionCriteria: "Check React's GitHub stars on December 31, 2025",
			ResolutionDate:     time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC),
			CreatedBy:          "system",
		},
		{
			Slug:               "ai-framework-dominance",
			Title:              "An AI-first framework will be in the top 5 most used by 2026",
			Description:        "Will an AI-native development framework break into the top 5 most used frameworks?",
			Category:           domain.CategoryTrend,
			ResolutionCriteria: "Based on Stack Overflow Developer Survey 2026",
			ResolutionDate:     time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
			CreatedBy:          "system",
			IsExpert:           true,
		},
	}
}
