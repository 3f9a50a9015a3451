package main

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadSiteOverrides(t *testing.T) {
	dir := t.TempDir()
	content := `{"scraper_config": {"main_url": "https://homes.example.com", "keyword": "sydney", "max_num_of_pages": 20, "outfile": "site.csv"}}`
	if err := os.WriteFile(filepath.Join(dir, "homes.json"), []byte(content), 0644); err != nil {
		t.Fatalf("写入配置失败: %v", err)
	}

	oldDir, oldOut, oldKw, oldMax := siteDir, outfile, keyword, maxPages
	t.Cleanup(func() { siteDir, outfile, keyword, maxPages = oldDir, oldOut, oldKw, oldMax })

	tests := []struct {
		name        string
		out, kw     string
		max         int
		wantOut     string
		wantKeyword string
		wantMax     int
	}{
		{"不覆盖", "", "", 0, "site.csv", "sydney", 20},
		{"全部覆盖", "cli.csv", "melbourne", 3, "cli.csv", "melbourne", 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			siteDir, outfile, keyword, maxPages = dir, tt.out, tt.kw, tt.max
			site, err := loadSite("homes")
			if err != nil {
				t.Fatalf("loadSite() 错误: %v", err)
			}
			if site.Outfile != tt.wantOut || site.Keyword != tt.wantKeyword || site.MaxNumOfPages != tt.wantMax {
				t.Errorf("site = outfile:%s keyword:%s max:%d", site.Outfile, site.Keyword, site.MaxNumOfPages)
			}
		})
	}
}

func TestValidateFlags(t *testing.T) {
	if err := ValidateFlags(0); err != nil {
		t.Errorf("0 表示不覆盖: %v", err)
	}
	if err := ValidateFlags(-1); err == nil {
		t.Error("负数应报错")
	}
}
