package api

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
)

// ListServiceResults returns the examination results visible to the
// customer.
func (c *Client) ListServiceResults(ctx context.Context) ([]ServiceResult, error) {
	var results []ServiceResult
	if err := c.doJSON(ctx, http.MethodGet, "/api/KetQuaDichVu/get-all-ket-qua-dich-vu", authRequired, nil, &results); err != nil {
		return nil, fmt.Errorf("list service results: %w", err)
	}
	return results, nil
}

// ListServiceReviews returns the approved reviews of a service.
func (c *Client) ListServiceReviews(ctx context.Context, serviceID int64) ([]Review, error) {
	path := withQuery("/api/DanhGia/get-all-danh-gia-by-ma-dich-vu", idQuery("maDichVu", serviceID))
	var reviews []Review
	if err := c.doJSON(ctx, http.MethodGet, path, authOptional, nil, &reviews); err != nil {
		return nil, fmt.Errorf("list service %d reviews: %w", serviceID, err)
	}
	return reviews, nil
}

// ListPendingReviews returns reviews still awaiting moderation.
func (c *Client) ListPendingReviews(ctx context.Context) ([]Review, error) {
	var reviews []Review
	if err := c.doJSON(ctx, http.MethodGet, "/api/DanhGia/get-all-danh-gia-chua-duyet", authRequired, nil, &reviews); err != nil {
		return nil, fmt.Errorf("list pending reviews: %w", err)
	}
	return reviews, nil
}

// CreateReview submits a review for moderation.
func (c *Client) CreateReview(ctx context.Context, req CreateReviewRequest) error {
	fields := map[string]string{
		"maKetQuaDichVu": strconv.FormatInt(req.ResultID, 10),
		"soSaoDanhGia":   strconv.Itoa(req.Stars),
		"noiDungDanhGia": req.Content,
	}
	if err := c.doForm(ctx, "/api/DanhGia/create-danh-gia", authRequired, fields, nil); err != nil {
		return fmt.Errorf("create review: %w", err)
	}
	return nil
}
