package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"document-rag-platform/internal/config"
	"document-rag-platform/internal/logger"
	"document-rag-platform/internal/vectorindex"
	"document-rag-platform/internal/vectorindex/memory"
	"document-rag-platform/internal/vectorindex/qdrant"
)

// resetindex drops and recreates the vector collection. With --purge it
// also clears the document metadata so the store starts empty instead of
// pointing at vectors that no longer exist.
func main() {
	purge := flag.Bool("purge", false, "also delete all document metadata records")
	yes := flag.Bool("yes", false, "skip the confirmation prompt")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.InitLogger(cfg)

	fmt.Printf("Target: %s collection %q (%d dimensions)\n",
		cfg.VectorIndexDriver, cfg.VectorCollection, cfg.VectorDimensions)
	if *purge {
		fmt.Printf("Purge:  document metadata in %s/%s\n", cfg.MongoURI, cfg.DBName)
	}

	if !*yes && !confirm("This deletes all indexed vectors. Continue? [y/N] ") {
		fmt.Println("Aborted.")
		os.Exit(1)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	index := newVectorIndex(cfg)
	if err := index.Drop(ctx); err != nil {
		log.Fatalf("Failed to drop vector collection: %v", err)
	}
	if err := index.Init(ctx); err != nil {
		log.Fatalf("Failed to recreate vector collection: %v", err)
	}
	fmt.Printf("Vector collection %q recreated.\n", cfg.VectorCollection)

	if *purge {
		mongoClient, err := config.ConnectMongoDB(cfg)
		if err != nil {
			log.Fatalf("Failed to connect to MongoDB: %v", err)
		}
		defer mongoClient.Disconnect(ctx)

		result, err := mongoClient.Database(cfg.DBName).Collection("documents").DeleteMany(ctx, bson.M{})
		if err != nil {
			log.Fatalf("Failed to purge document metadata: %v", err)
		}
		fmt.Printf("Deleted %d document records.\n", result.DeletedCount)
	}

	fmt.Println("Done.")
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	reader := bufio.NewReader(os.Stdin)
	answer, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer = strings.ToLower(strings.TrimSpace(answer))
	return answer == "y" || answer == "yes"
}

func newVectorIndex(cfg *config.Config) vectorindex.Index {
	if cfg.VectorIndexDriver == "memory" {
		return memory.New(cfg.VectorDimensions, cfg.MaxChunkTextLen)
	}
	return qdrant.New(qdrant.Config{
		URL:             cfg.QdrantURL,
		APIKey:          cfg.QdrantAPIKey,
		Collection:      cfg.VectorCollection,
		Dimensions:      cfg.VectorDimensions,
		MaxTextLen:      cfg.MaxChunkTextLen,
		HNSWM:           cfg.HNSWM,
		HNSWEfConstruct: cfg.HNSWEfConstruct,
		HNSWEfSearch:    cfg.HNSWEfSearch,
	})
}
