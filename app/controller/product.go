package controller

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"go-auth-api/app/dto"
	"go-auth-api/app/service"
)

type ProductController struct {
	productService *service.ProductService
}

func NewProductController(productService *service.ProductService) *ProductController {
	return &ProductController{productService: productService}
}

func (c *ProductController) Create(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	var req dto.CreateProductRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	product, err := c.productService.Create(ctx.Request().Context(), userID, req.Name, req.Description, req.Price, req.Stock)
	if err != nil {
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusCreated, dto.NewProductResponse(product))
}

func (c *ProductController) Get(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	product, err := c.productService.Get(ctx.Request().Context(), userID, ctx.Param("id"))
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "product not found"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewProductResponse(product))
}

func (c *ProductController) List(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	params := service.ProductListParams{
		Search:   ctx.QueryParam("search"),
		SortBy:   ctx.QueryParam("sort_by"),
		SortDesc: ctx.QueryParam("order") == "desc",
	}
	if page, err := strconv.Atoi(ctx.QueryParam("page")); err == nil {
		params.Page = page
	}
	if limit, err := strconv.Atoi(ctx.QueryParam("limit")); err == nil {
		params.Limit = limit
	}

	list, err := c.productService.List(ctx.Request().Context(), userID, params)
	if err != nil {
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewProductListResponse(list))
}

func (c *ProductController) Update(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	var req dto.UpdateProductRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	update := service.ProductUpdate{
		Name:        req.Name,
		Description: req.Description,
		Price:       req.Price,
		Stock:       req.Stock,
	}
	product, err := c.productService.Update(ctx.Request().Context(), userID, ctx.Param("id"), update)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "product not found"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.NewProductResponse(product))
}

func (c *ProductController) Delete(ctx echo.Context) error {
	userID, ok := currentUserID(ctx)
	if !ok {
		return ctx.JSON(http.StatusUnauthorized, dto.ErrorResponse{Error: "Authentication required"})
	}

	var req dto.DeleteProductsRequest
	if err := bindAndValidate(ctx, &req); err != nil {
		return err
	}

	deleted, err := c.productService.Delete(ctx.Request().Context(), userID, req.IDs)
	if err != nil {
		if errors.Is(err, service.ErrProductNotFound) {
			return ctx.JSON(http.StatusNotFound, dto.ErrorResponse{Error: "product not found"})
		}
		return internalError(ctx, err)
	}

	return ctx.JSON(http.StatusOK, dto.MessageResponse{
		Message: strconv.FormatInt(deleted, 10) + " product(s) deleted",
	})
}
