// Command healthcheck probes the service's gRPC health endpoint and exits
// non-zero unless the pipeline is serving. With -watch it follows status changes.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/health/grpc_health_v1"

	grpcapi "speech-caption-service/internal/api/grpc"
)

func main() {
	serverAddr := flag.String("server", "localhost:50051", "gRPC server address")
	service := flag.String("service", grpcapi.ServiceName, "Health service name, empty for overall")
	timeout := flag.Duration("timeout", 5*time.Second, "Check timeout")
	watch := flag.Bool("watch", false, "Stream status changes until interrupted")
	flag.Parse()

	conn, err := grpc.NewClient(*serverAddr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	client := grpc_health_v1.NewHealthClient(conn)
	req := &grpc_health_v1.HealthCheckRequest{Service: *service}

	if *watch {
		stream, err := client.Watch(context.Background(), req)
		if err != nil {
			log.Fatalf("failed to watch: %v", err)
		}
		for {
			resp, err := stream.Recv()
			if err != nil {
				log.Fatalf("watch ended: %v", err)
			}
			log.Printf("service=%q status=%s", *service, resp.Status)
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	resp, err := client.Check(ctx, req)
	if err != nil {
		log.Fatalf("health check failed: %v", err)
	}

	log.Printf("service=%q status=%s", *service, resp.Status)
	if resp.Status != grpc_health_v1.HealthCheckResponse_SERVING {
		os.Exit(1)
	}
}
