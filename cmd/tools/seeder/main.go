package main

import (
	"context"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"

	"github.com/noah-isme/toko-kasir/internal/repo"
)

type product struct {
	ID, Name, Label string
	UPP            int
	Sale, Purchase int64
	Stock, Limit   int
	Weight         float64
}

type customer struct {
	ID, Name string
	Limit    int64
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}
	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}
	if err := repo.Migrate(dbURL); err != nil {
		log.Fatalf("Failed to migrate: %v", err)
	}

	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close(ctx)

	seedProducts(ctx, conn)
	seedCustomers(ctx, conn)
	log.Println("Seeding completed successfully!")
}

func seedProducts(ctx context.Context, conn *pgx.Conn) {
	products := []product{
		{"beras-5kg", "Beras Pandan Wangi 5kg", "karung", 4, 320000, 290000, 120, 0, 5},
		{"gula-1kg", "Gula Pasir 1kg", "bal", 20, 340000, 310000, 400, 0, 1},
		{"minyak-2l", "Minyak Goreng 2L", "dus", 6, 210000, 192000, 90, 24, 1.9},
		{"telur", "Telur Ayam", "tray", 30, 57000, 51000, 600, 0, 0.06},
		{"garam", "Garam Dapur 250g", "pak", 12, 30000, 25000, 240, 0, 0.25},
		{"air-galon", "Air Mineral Galon", "galon", 1, 21000, 17000, 60, 0, 19},
	}
	log.Println("Seeding Products...")
	batch := &pgx.Batch{}
	for _, p := range products {
		batch.Queue(`
INSERT INTO products (id, name, package_label, units_per_package, sale_price, purchase_price, stock, daily_limit, weight_per_unit)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, package_label = EXCLUDED.package_label,
    units_per_package = EXCLUDED.units_per_package, sale_price = EXCLUDED.sale_price,
    purchase_price = EXCLUDED.purchase_price, daily_limit = EXCLUDED.daily_limit,
    weight_per_unit = EXCLUDED.weight_per_unit`,
			p.ID, p.Name, p.Label, p.UPP, p.Sale, p.Purchase, p.Stock, p.Limit, p.Weight)
	}
	if err := conn.SendBatch(ctx, batch).Close(); err != nil {
		log.Fatalf("Failed to seed products: %v", err)
	}
}

func seedCustomers(ctx context.Context, conn *pgx.Conn) {
	customers := []customer{
		{"warung-sari", "Warung Bu Sari", 2000000},
		{"toko-budi", "Toko Pak Budi", 5000000},
		{"kantin-smp", "Kantin SMP 3", 0},
	}
	log.Println("Seeding Customers...")
	for _, c := range customers {
		if _, err := conn.Exec(ctx, `
INSERT INTO customers (id, name, credit_limit) VALUES ($1, $2, $3)
ON CONFLICT (id) DO UPDATE SET name = EXCLUDED.name, credit_limit = EXCLUDED.credit_limit`,
			c.ID, c.Name, c.Limit); err != nil {
			log.Fatalf("Failed to seed customer %s: %v", c.ID, err)
		}
	}
}
