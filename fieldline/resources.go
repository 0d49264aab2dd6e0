package fieldline

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Wire types. Timestamps stay strings here; the sync layer parses them so a
// malformed date fails one record, not the whole decode.

type BusinessUnit struct {
	Id     int    `json:"id"`
	Name   string `json:"name"`
	Active bool   `json:"active"`
}

type JobType struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

type NameRef struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
}

type Invoice struct {
	Id            int         `json:"id"`
	Number        string      `json:"number"`
	Customer      NameRef     `json:"customer"`
	BusinessUnit  NameRef     `json:"businessUnit"`
	InvoicedOn    string      `json:"invoicedOn"`
	Total         json.Number `json:"total"`
	Balance       json.Number `json:"balance"`
	Summary       string      `json:"summary"`
	JobId         int         `json:"jobId"`
}

type Job struct {
	Id             int     `json:"id"`
	JobNumber      string  `json:"jobNumber"`
	BusinessUnit   NameRef `json:"businessUnit"`
	JobType        NameRef `json:"jobType"`
	Customer       NameRef `json:"customer"`
	TechnicianName string  `json:"leadTechnicianName"`
	Summary        string  `json:"summary"`
	CompletedOn    string  `json:"completedOn"`
	InvoiceId      int     `json:"invoiceId"`
}

type Customer struct {
	Id   int    `json:"id"`
	Name string `json:"name"`
	Type string `json:"type"` // "Residential" or "Commercial"
}

type Appointment struct {
	Id     int    `json:"id"`
	JobId  int    `json:"jobId"`
	Status string `json:"status"`
	Start  string `json:"start"`
	End    string `json:"end"`
}

type Attachment struct {
	Id       int    `json:"id"`
	JobId    int    `json:"jobId"`
	FileName string `json:"fileName"`
	Type     string `json:"type"` // "photo" or "form"
	Url      string `json:"url"`
}

func (c *Client) tenantPath(format string, args ...any) string {
	return fmt.Sprintf(format, append([]any{c.creds.TenantId}, args...)...)
}

// BusinessUnits is cached for the client lifetime; the registry changes a few
// times a year at most.
func (c *Client) BusinessUnits(ctx context.Context) ([]BusinessUnit, error) {
	c.buMu.Lock()
	defer c.buMu.Unlock()
	if c.buCache != nil {
		return c.buCache, nil
	}

	raw, err := c.RequestAllPages(ctx, c.tenantPath("/settings/v2/tenant/%s/business-units"), nil)
	if err != nil {
		return nil, err
	}
	units, err := decodeAll[BusinessUnit](raw)
	if err != nil {
		return nil, err
	}
	c.buCache = units
	return units, nil
}

func (c *Client) JobTypes(ctx context.Context) ([]JobType, error) {
	raw, err := c.RequestAllPages(ctx, c.tenantPath("/jpm/v2/tenant/%s/job-types"), nil)
	if err != nil {
		return nil, err
	}
	return decodeAll[JobType](raw)
}

// CompletedJobs fetches jobs completed on or after the given time, optionally
// scoped to one business unit (0 = all).
func (c *Client) CompletedJobs(ctx context.Context, completedOnOrAfter time.Time, businessUnitId int) ([]Job, error) {
	params := url.Values{}
	params.Set("jobStatus", "Completed")
	params.Set("completedOnOrAfter", completedOnOrAfter.UTC().Format(time.RFC3339))
	if businessUnitId > 0 {
		params.Set("businessUnitIds", strconv.Itoa(businessUnitId))
	}
	raw, err := c.RequestAllPages(ctx, c.tenantPath("/jpm/v2/tenant/%s/jobs"), params)
	if err != nil {
		return nil, err
	}
	return decodeAll[Job](raw)
}

// OpenInvoices fetches every invoice with a nonzero balance as of now. This is
// the authoritative open set: absence from it means the invoice is settled.
func (c *Client) OpenInvoices(ctx context.Context) ([]Invoice, error) {
	params := url.Values{}
	params.Set("statuses", "Open")
	raw, err := c.RequestAllPages(ctx, c.tenantPath("/accounting/v2/tenant/%s/invoices"), params)
	if err != nil {
		return nil, err
	}
	return decodeAll[Invoice](raw)
}

func (c *Client) InvoicesByIDs(ctx context.Context, ids []int) ([]Invoice, error) {
	return fetchByIDs[Invoice](ctx, c, c.tenantPath("/accounting/v2/tenant/%s/invoices"), ids)
}

func (c *Client) CustomersByIDs(ctx context.Context, ids []int) ([]Customer, error) {
	return fetchByIDs[Customer](ctx, c, c.tenantPath("/crm/v2/tenant/%s/customers"), ids)
}

func (c *Client) Appointments(ctx context.Context, jobId int) ([]Appointment, error) {
	params := url.Values{}
	params.Set("jobId", strconv.Itoa(jobId))
	raw, err := c.RequestAllPages(ctx, c.tenantPath("/jpm/v2/tenant/%s/appointments"), params)
	if err != nil {
		return nil, err
	}
	return decodeAll[Appointment](raw)
}

func (c *Client) JobAttachments(ctx context.Context, jobId int) ([]Attachment, error) {
	raw, err := c.RequestAllPages(ctx, c.tenantPath("/forms/v2/tenant/%s/jobs/%d/attachments", jobId), nil)
	if err != nil {
		return nil, err
	}
	return decodeAll[Attachment](raw)
}

// DownloadAttachment fetches the raw attachment content. Attachment URLs are
// absolute and pre-signed but still require the app key header.
func (c *Client) DownloadAttachment(ctx context.Context, att Attachment) ([]byte, error) {
	token, err := c.getAccessToken(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, att.Url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("FL-App-Key", c.creds.AppKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}
	return body, nil
}

// fetchByIDs chunks the ids filter at idChunkSize per request; the upstream
// rejects longer filter lists.
func fetchByIDs[T any](ctx context.Context, c *Client, path string, ids []int) ([]T, error) {
	var all []T
	for start := 0; start < len(ids); start += idChunkSize {
		end := start + idChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		chunk := ids[start:end]

		strs := make([]string, len(chunk))
		for i, id := range chunk {
			strs[i] = strconv.Itoa(id)
		}
		params := url.Values{}
		params.Set("ids", strings.Join(strs, ","))

		raw, err := c.RequestAllPages(ctx, path, params)
		if err != nil {
			return nil, err
		}
		decoded, err := decodeAll[T](raw)
		if err != nil {
			return nil, err
		}
		all = append(all, decoded...)
	}
	return all, nil
}

func decodeAll[T any](raw []json.RawMessage) ([]T, error) {
	out := make([]T, 0, len(raw))
	for _, r := range raw {
		var item T
		if err := json.Unmarshal(r, &item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}
